package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// InMemoryDatabase is a process-local reactive JSON tree with the write
// semantics of the Firebase Realtime Database: empty objects do not exist,
// arrays are stored as index-keyed objects and server timestamps are
// resolved against the database clock at write time.
//
// Clients talk to it through InMemoryStore connections.
type InMemoryDatabase struct {
	lock          sync.Mutex
	root          interface{}
	clock         clock.Clock
	lastTimestamp int64

	watchers      map[int]*memoryWatcher
	nextWatcherID int

	// notifications are delivered by one goroutine at a time, in the
	// order the writes were applied
	pending    []notification
	delivering bool
}

type memoryWatcher struct {
	id   int
	segs []string
	path string
	fn   WatchFunc
	last string
}

type notification struct {
	fn   WatchFunc
	snap Snapshot
}

type NewInMemoryDatabaseOptions struct {
	// Clock resolves server timestamps. Defaults to the wall clock.
	Clock clock.Clock
}

func NewInMemoryDatabase(opts NewInMemoryDatabaseOptions) *InMemoryDatabase {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	return &InMemoryDatabase{
		clock:    c,
		watchers: make(map[int]*memoryWatcher),
	}
}

// Connect opens a new connection. Removals registered on it run when
// it is disconnected.
func (d *InMemoryDatabase) Connect() *InMemoryStore {
	return &InMemoryStore{db: d}
}

// Dump returns the whole tree as JSON.
func (d *InMemoryDatabase) Dump() json.RawMessage {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.rawAt(nil)
}

func (d *InMemoryDatabase) now() int64 {
	ms := d.clock.Now().UnixMilli()
	if ms < d.lastTimestamp {
		ms = d.lastTimestamp
	}
	d.lastTimestamp = ms
	return ms
}

func (d *InMemoryDatabase) rawAt(segs []string) json.RawMessage {
	b, err := json.Marshal(getNode(d.root, segs))
	if err != nil {
		// the tree only ever holds values decoded from JSON
		panic(fmt.Sprintf("failed to marshal in-memory node: %v", err))
	}
	return b
}

func (d *InMemoryDatabase) watch(ctx context.Context, path string, fn WatchFunc) {
	d.lock.Lock()
	segs := SplitPath(path)
	w := &memoryWatcher{
		id:   d.nextWatcherID,
		segs: segs,
		path: CleanPath(path),
		fn:   fn,
	}
	d.nextWatcherID++
	d.watchers[w.id] = w
	raw := d.rawAt(segs)
	w.last = string(raw)
	d.pending = append(d.pending, notification{fn: fn, snap: NewSnapshot(w.path, raw)})
	d.lock.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			d.lock.Lock()
			delete(d.watchers, w.id)
			d.lock.Unlock()
		}()
	}

	d.flush()
}

func (d *InMemoryDatabase) read(path string) Snapshot {
	d.lock.Lock()
	defer d.lock.Unlock()
	return NewSnapshot(path, d.rawAt(SplitPath(path)))
}

// apply runs writes atomically and queues notifications for every
// watcher whose value changed.
func (d *InMemoryDatabase) apply(writes map[string]interface{}) error {
	normalized := make(map[string]interface{}, len(writes))
	for path, value := range writes {
		v, err := normalize(value)
		if err != nil {
			return fmt.Errorf("invalid value for path %s: %w", path, err)
		}
		normalized[path] = v
	}

	d.lock.Lock()
	ts := d.now()
	changed := make([][]string, 0, len(normalized))
	for path, v := range normalized {
		segs := SplitPath(path)
		d.root = setNode(d.root, segs, resolveServerValues(v, ts))
		changed = append(changed, segs)
	}

	ids := make([]int, 0, len(d.watchers))
	for id := range d.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		w := d.watchers[id]
		if !relatedToAny(w.segs, changed) {
			continue
		}
		raw := d.rawAt(w.segs)
		if string(raw) == w.last {
			continue
		}
		w.last = string(raw)
		d.pending = append(d.pending, notification{fn: w.fn, snap: NewSnapshot(w.path, raw)})
	}
	d.lock.Unlock()

	d.flush()
	return nil
}

func (d *InMemoryDatabase) flush() {
	d.lock.Lock()
	if d.delivering {
		d.lock.Unlock()
		return
	}
	d.delivering = true
	for len(d.pending) > 0 {
		n := d.pending[0]
		d.pending = d.pending[1:]
		d.lock.Unlock()
		n.fn(n.snap)
		d.lock.Lock()
	}
	d.delivering = false
	d.lock.Unlock()
}

var _ Store = &InMemoryStore{}
var _ Disconnector = &InMemoryStore{}

// InMemoryStore is one connection to an InMemoryDatabase.
type InMemoryStore struct {
	db *InMemoryDatabase

	lock     sync.Mutex
	cleanups []string
	closed   bool
}

func (s *InMemoryStore) Watch(ctx context.Context, path string, fn WatchFunc) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.db.watch(ctx, path, fn)
	return nil
}

func (s *InMemoryStore) ReadOnce(ctx context.Context, path string) (Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return Snapshot{}, err
	}
	return s.db.read(path), nil
}

func (s *InMemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.apply(map[string]interface{}{path: value})
}

func (s *InMemoryStore) Update(ctx context.Context, path string, values map[string]interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("update of %s has no values", path)
	}
	writes := make(map[string]interface{}, len(values))
	for key, v := range values {
		writes[JoinPath(path, key)] = v
	}
	return s.db.apply(writes)
}

func (s *InMemoryStore) NewID(path string) string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *InMemoryStore) OnDisconnectRemove(ctx context.Context, path string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return fmt.Errorf("connection closed")
	}
	s.cleanups = append(s.cleanups, CleanPath(path))
	return nil
}

// Disconnect closes the connection and runs its deferred removals.
func (s *InMemoryStore) Disconnect(ctx context.Context) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.lock.Unlock()

	if len(cleanups) == 0 {
		return nil
	}
	writes := make(map[string]interface{}, len(cleanups))
	for _, path := range cleanups {
		writes[path] = nil
	}
	return s.db.apply(writes)
}

func (s *InMemoryStore) checkOpen() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return fmt.Errorf("connection closed")
	}
	return nil
}

// normalize converts v into the generic JSON form held by the tree.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return prune(out), nil
}

// prune turns arrays into index-keyed objects and drops nulls and empty objects.
func prune(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		m := make(map[string]interface{}, len(t))
		for i, e := range t {
			m[strconv.Itoa(i)] = e
		}
		return prune(m)
	case map[string]interface{}:
		if isServerTimestamp(t) {
			return t
		}
		for k, e := range t {
			p := prune(e)
			if p == nil {
				delete(t, k)
				continue
			}
			t[k] = p
		}
		if len(t) == 0 {
			return nil
		}
		return t
	default:
		return v
	}
}

func resolveServerValues(v interface{}, ts int64) interface{} {
	if isServerTimestamp(v) {
		return float64(ts)
	}
	if m, ok := v.(map[string]interface{}); ok {
		for k, e := range m {
			m[k] = resolveServerValues(e, ts)
		}
	}
	return v
}

func getNode(root interface{}, segs []string) interface{} {
	node := root
	for _, seg := range segs {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// setNode returns root with value placed at segs, pruning parents left empty.
func setNode(root interface{}, segs []string, value interface{}) interface{} {
	if len(segs) == 0 {
		return value
	}
	m, ok := root.(map[string]interface{})
	if !ok {
		if value == nil {
			return root
		}
		m = make(map[string]interface{})
	}
	child := setNode(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func relatedToAny(segs []string, changed [][]string) bool {
	for _, c := range changed {
		if isPrefix(segs, c) || isPrefix(c, segs) {
			return true
		}
	}
	return false
}

func isPrefix(prefix, segs []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segs[i] {
			return false
		}
	}
	return true
}
