// Package barrier implements the fan-in gate that withholds a combined
// result until every expected part has reported at least once.
package barrier

// Barrier keeps the latest value per key in first-arrival order.
// It is not safe for concurrent use.
type Barrier[K comparable, V any] struct {
	expected map[K]bool
	index    map[K]int
	keys     []K
	values   []V
}

func New[K comparable, V any]() *Barrier[K, V] {
	return &Barrier[K, V]{
		expected: make(map[K]bool),
		index:    make(map[K]int),
	}
}

// Expect adds key to the set that must report before the barrier opens.
// It returns false if key was already expected.
func (b *Barrier[K, V]) Expect(key K) bool {
	if b.expected[key] {
		return false
	}
	b.expected[key] = true
	return true
}

// Put upserts the value for key and reports whether every expected key
// has now reported. Values for keys that were never expected are dropped.
func (b *Barrier[K, V]) Put(key K, value V) bool {
	if !b.expected[key] {
		return false
	}
	if i, ok := b.index[key]; ok {
		b.values[i] = value
	} else {
		b.index[key] = len(b.keys)
		b.keys = append(b.keys, key)
		b.values = append(b.values, value)
	}
	return b.Ready()
}

func (b *Barrier[K, V]) Get(key K) (V, bool) {
	i, ok := b.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return b.values[i], true
}

// Ready reports whether every expected key has reported.
func (b *Barrier[K, V]) Ready() bool {
	return len(b.keys) >= len(b.expected)
}

// Values returns the received values in first-arrival order.
func (b *Barrier[K, V]) Values() []V {
	return append([]V(nil), b.values...)
}

func (b *Barrier[K, V]) Received() int {
	return len(b.keys)
}

func (b *Barrier[K, V]) Expected() int {
	return len(b.expected)
}
