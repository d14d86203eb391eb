package store

import (
	"context"
	"encoding/json"
	"strings"
)

// Store is a reactive, path-addressed database.
//
// Callbacks for one path fire in the order the store applied the writes.
// Callbacks for different paths carry no relative ordering.
type Store interface {
	// Watch calls fn with the value at path once when attached and again
	// after every change. The watch lasts until ctx is done.
	Watch(ctx context.Context, path string, fn WatchFunc) error
	// ReadOnce resolves the current value at path exactly once.
	ReadOnce(ctx context.Context, path string) (Snapshot, error)
	// Set replaces the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value interface{}) error
	// Update upserts each key under path atomically. Keys may contain
	// slashes to address nested children, and nil values delete keys.
	Update(ctx context.Context, path string, values map[string]interface{}) error
	// NewID returns a unique, time-ordered key for a new child of path.
	NewID(path string) string
	// OnDisconnectRemove deletes path if this connection drops
	// before the removal is cancelled.
	OnDisconnectRemove(ctx context.Context, path string) error
}

// Disconnector is implemented by stores that own a connection and run
// the removals registered with OnDisconnectRemove when it closes.
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

type WatchFunc func(snap Snapshot)

// Snapshot is an immutable view of the JSON value at a path.
type Snapshot struct {
	path string
	raw  json.RawMessage
}

func NewSnapshot(path string, raw json.RawMessage) Snapshot {
	return Snapshot{path: CleanPath(path), raw: raw}
}

func (s Snapshot) Path() string {
	return s.path
}

// Key returns the last segment of the snapshot's path.
func (s Snapshot) Key() string {
	i := strings.LastIndex(s.path, "/")
	return s.path[i+1:]
}

func (s Snapshot) Exists() bool {
	trimmed := strings.TrimSpace(string(s.raw))
	return trimmed != "" && trimmed != "null"
}

func (s Snapshot) Raw() json.RawMessage {
	return s.raw
}

// Unmarshal decodes the snapshot into v. A missing value leaves v untouched.
func (s Snapshot) Unmarshal(v interface{}) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.raw, v)
}

// CleanPath normalizes a path to "/a/b/c" form.
func CleanPath(path string) string {
	return "/" + strings.Join(SplitPath(path), "/")
}

// SplitPath returns the non-empty segments of a path.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// JoinPath joins path segments into a clean path.
func JoinPath(elems ...string) string {
	return CleanPath(strings.Join(elems, "/"))
}
