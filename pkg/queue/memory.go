package queue

import (
	"context"
	"sync"
)

var _ Queue = &TaskQueue{}

// TaskQueue implements an in-memory task queue.
type TaskQueue struct {
	lock   sync.Mutex
	tasks  []Task
	notify chan struct{}
}

// NewTaskQueue creates a new queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the end of the queue.
func (q *TaskQueue) Enqueue(task Task) {
	if task == nil {
		return
	}
	q.lock.Lock()
	q.tasks = append(q.tasks, task)
	q.lock.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Size returns the current size of the queue.
func (q *TaskQueue) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.tasks)
}

func (q *TaskQueue) dequeue() (Task, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

func (q *TaskQueue) RunPending() int {
	n := 0
	for {
		task, ok := q.dequeue()
		if !ok {
			return n
		}
		task()
		n++
	}
}

func (q *TaskQueue) Run(ctx context.Context) {
	for {
		q.RunPending()
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		}
	}
}

// Clear drops all pending tasks.
func (q *TaskQueue) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.tasks = nil
}
