// Package storetest provides a scripted store.Store for tests. Watches
// never fire on their own: the test decides what each path delivers and
// in which order.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cbodonnell/gameportal/pkg/store"
)

var _ store.Store = &FakeStore{}
var _ store.Disconnector = &FakeStore{}

// Write is one recorded Set or Update.
type Write struct {
	Op     string
	Path   string
	Value  interface{}
	Values map[string]interface{}
}

// JSON renders the written payload the way the store would receive it.
func (w Write) JSON() string {
	var v interface{} = w.Value
	if w.Op == "update" {
		v = w.Values
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}

type FakeStore struct {
	lock     sync.Mutex
	watches  map[string][]store.WatchFunc
	data     map[string]json.RawMessage
	writes   []Write
	cleanups []string
	reads    int
	nextID   int

	// SetErr and UpdateErr fail every Set or Update when non-nil.
	SetErr    error
	UpdateErr error
	// OnRead runs at the start of every ReadOnce, outside the lock.
	OnRead func(path string)
}

func New() *FakeStore {
	return &FakeStore{
		watches: make(map[string][]store.WatchFunc),
		data:    make(map[string]json.RawMessage),
	}
}

func (f *FakeStore) Watch(ctx context.Context, path string, fn store.WatchFunc) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	path = store.CleanPath(path)
	f.watches[path] = append(f.watches[path], fn)
	return nil
}

// Fire delivers raw to every watch on path.
func (f *FakeStore) Fire(path string, raw string) {
	path = store.CleanPath(path)
	f.lock.Lock()
	fns := append([]store.WatchFunc(nil), f.watches[path]...)
	f.lock.Unlock()

	for _, fn := range fns {
		fn(store.NewSnapshot(path, json.RawMessage(raw)))
	}
}

func (f *FakeStore) Watching(path string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.watches[store.CleanPath(path)]) > 0
}

// WatchCount returns the number of watches attached to path.
func (f *FakeStore) WatchCount(path string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.watches[store.CleanPath(path)])
}

// Put sets the value ReadOnce returns for path.
func (f *FakeStore) Put(path string, raw string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.data[store.CleanPath(path)] = json.RawMessage(raw)
}

func (f *FakeStore) ReadOnce(ctx context.Context, path string) (store.Snapshot, error) {
	if f.OnRead != nil {
		f.OnRead(path)
	}
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.reads++
	path = store.CleanPath(path)
	raw, ok := f.data[path]
	if !ok {
		raw = json.RawMessage("null")
	}
	return store.NewSnapshot(path, raw), nil
}

func (f *FakeStore) Set(ctx context.Context, path string, value interface{}) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	f.writes = append(f.writes, Write{Op: "set", Path: store.CleanPath(path), Value: value})
	return nil
}

func (f *FakeStore) Update(ctx context.Context, path string, values map[string]interface{}) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.writes = append(f.writes, Write{Op: "update", Path: store.CleanPath(path), Values: values})
	return nil
}

// NewID returns id-1, id-2, ... in call order.
func (f *FakeStore) NewID(path string) string {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *FakeStore) OnDisconnectRemove(ctx context.Context, path string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.cleanups = append(f.cleanups, store.CleanPath(path))
	return nil
}

func (f *FakeStore) Disconnect(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.cleanups = nil
	return nil
}

func (f *FakeStore) Writes() []Write {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Write(nil), f.writes...)
}

func (f *FakeStore) Cleanups() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.cleanups...)
}

// Reads returns the number of ReadOnce calls that reached the store.
func (f *FakeStore) Reads() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.reads
}
