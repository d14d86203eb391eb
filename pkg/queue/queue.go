package queue

import "context"

// Task is a unit of work run on an event loop.
type Task = func()

// Queue is an unbounded FIFO of tasks consumed by a single goroutine.
// Enqueue never blocks, so producers such as store watchers
// cannot stall behind a busy loop.
type Queue interface {
	Enqueue(task Task)
	Size() int
	// RunPending runs queued tasks, including those enqueued while running,
	// until the queue is empty. It returns the number of tasks run.
	RunPending() int
	// Run consumes tasks until ctx is done.
	Run(ctx context.Context)
	Clear()
}
