package store

import "context"

// Dispatching wraps s so that watch callbacks are handed to post instead
// of running on the store's goroutine. Sessions pass their event loop's
// Enqueue so all callbacks run serially on one goroutine.
func Dispatching(s Store, post func(func())) Store {
	return &dispatchingStore{Store: s, post: post}
}

type dispatchingStore struct {
	Store
	post func(func())
}

func (d *dispatchingStore) Watch(ctx context.Context, path string, fn WatchFunc) error {
	return d.Store.Watch(ctx, path, func(snap Snapshot) {
		d.post(func() { fn(snap) })
	})
}

func (d *dispatchingStore) Disconnect(ctx context.Context) error {
	if dc, ok := d.Store.(Disconnector); ok {
		return dc.Disconnect(ctx)
	}
	return nil
}
