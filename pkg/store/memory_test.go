package store

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) (*InMemoryDatabase, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock()
	mockClock.Set(time.UnixMilli(1_000_000))
	return NewInMemoryDatabase(NewInMemoryDatabaseOptions{Clock: mockClock}), mockClock
}

func TestInMemoryStore_SetAndReadOnce(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/a/b", map[string]interface{}{"x": 1, "y": "two"}))

	snap, err := s.ReadOnce(ctx, "/a/b")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.Equal(t, "b", snap.Key())
	assert.JSONEq(t, `{"x":1,"y":"two"}`, string(snap.Raw()))

	missing, err := s.ReadOnce(ctx, "/a/c")
	require.NoError(t, err)
	assert.False(t, missing.Exists())
}

func TestInMemoryStore_UpdateUpsertsAndDeletes(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/m", map[string]interface{}{"keep": true, "drop": 1}))
	require.NoError(t, s.Update(ctx, "/m", map[string]interface{}{
		"drop":         nil,
		"added":        "yes",
		"nested/child": 3,
	}))

	snap, err := s.ReadOnce(ctx, "/m")
	require.NoError(t, err)
	assert.JSONEq(t, `{"keep":true,"added":"yes","nested":{"child":3}}`, string(snap.Raw()))

	assert.Error(t, s.Update(ctx, "/m", map[string]interface{}{}))
}

func TestInMemoryStore_EmptyParentsArePruned(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/a/b/c", 1))
	require.NoError(t, s.Set(ctx, "/a/b/c", nil))

	assert.JSONEq(t, `null`, string(db.Dump()))
}

func TestInMemoryStore_ArraysBecomeIndexedObjects(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/list", []interface{}{"a", nil, "c"}))

	snap, err := s.ReadOnce(ctx, "/list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":"a","2":"c"}`, string(snap.Raw()))
}

func TestInMemoryStore_ServerTimestampResolved(t *testing.T) {
	db, mockClock := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/t", map[string]interface{}{"at": ServerTimestamp()}))
	var first struct {
		At Timestamp `json:"at"`
	}
	snap, _ := s.ReadOnce(ctx, "/t")
	require.NoError(t, snap.Unmarshal(&first))
	assert.False(t, first.At.Pending())
	assert.Equal(t, int64(1_000_000), first.At.Millis())

	// a clock that runs backwards never produces an older timestamp
	mockClock.Set(time.UnixMilli(500))
	require.NoError(t, s.Set(ctx, "/t", map[string]interface{}{"at": ServerTimestamp()}))
	var second struct {
		At Timestamp `json:"at"`
	}
	snap, _ = s.ReadOnce(ctx, "/t")
	require.NoError(t, snap.Unmarshal(&second))
	assert.Equal(t, int64(1_000_000), second.At.Millis())
}

func TestInMemoryStore_WatchFiresOnAttachAndChange(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	require.NoError(t, s.Watch(ctx, "/w", func(snap Snapshot) {
		got = append(got, string(snap.Raw()))
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "null", got[0])

	require.NoError(t, s.Set(ctx, "/w/x", 1))
	// an unrelated path does not fire
	require.NoError(t, s.Set(ctx, "/other", 1))
	// writing the same value does not fire
	require.NoError(t, s.Set(ctx, "/w/x", 1))
	require.NoError(t, s.Set(ctx, "/w", nil))

	assert.Equal(t, []string{"null", `{"x":1}`, "null"}, got)
}

func TestInMemoryStore_NestedWritesDeliverAfterCallback(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	ctx := context.Background()

	var order []string
	require.NoError(t, s.Watch(ctx, "/a", func(snap Snapshot) {
		order = append(order, "a:"+string(snap.Raw()))
		if snap.Exists() {
			require.NoError(t, s.Set(ctx, "/b", 1))
			order = append(order, "a-done")
		}
	}))
	require.NoError(t, s.Watch(ctx, "/b", func(snap Snapshot) {
		order = append(order, "b:"+string(snap.Raw()))
	}))

	require.NoError(t, s.Set(ctx, "/a", 1))
	assert.Equal(t, []string{"a:null", "b:null", "a:1", "a-done", "b:1"}, order)
}

func TestInMemoryStore_DisconnectRunsCleanup(t *testing.T) {
	db, _ := newTestDatabase(t)
	sender := db.Connect()
	other := db.Connect()
	ctx := context.Background()

	require.NoError(t, sender.Set(ctx, "/mailbox/1", "hello"))
	require.NoError(t, sender.Set(ctx, "/mailbox/2", "kept"))
	require.NoError(t, sender.OnDisconnectRemove(ctx, "/mailbox/1"))

	require.NoError(t, sender.Disconnect(ctx))

	snap, err := other.ReadOnce(ctx, "/mailbox")
	require.NoError(t, err)
	assert.JSONEq(t, `{"2":"kept"}`, string(snap.Raw()))

	assert.Error(t, sender.Set(ctx, "/mailbox/3", "late"))
	assert.NoError(t, sender.Disconnect(ctx))
}

func TestInMemoryStore_NewIDUnique(t *testing.T) {
	db, _ := newTestDatabase(t)
	s := db.Connect()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NewID("/x")
		assert.False(t, seen[id])
		seen[id] = true
	}
}
