package barrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarrier_OpensOnlyWhenAllReported(t *testing.T) {
	b := New[string, int]()
	assert.True(t, b.Expect("A"))
	assert.True(t, b.Expect("B"))
	assert.False(t, b.Expect("A"))

	assert.False(t, b.Put("B", 2))
	assert.False(t, b.Ready())
	// repeated reports from one key do not open the barrier
	assert.False(t, b.Put("B", 3))

	assert.True(t, b.Put("A", 1))
	assert.Equal(t, []int{3, 1}, b.Values())

	// later updates keep the first-arrival position
	assert.True(t, b.Put("B", 4))
	assert.Equal(t, []int{4, 1}, b.Values())
}

func TestBarrier_NewExpectationClosesAgain(t *testing.T) {
	b := New[string, int]()
	b.Expect("A")
	assert.True(t, b.Put("A", 1))

	b.Expect("C")
	assert.False(t, b.Ready())
	assert.False(t, b.Put("A", 2))
	assert.True(t, b.Put("C", 3))
	assert.Equal(t, 2, b.Received())
	assert.Equal(t, 2, b.Expected())
}

func TestBarrier_IgnoresUnexpectedKeys(t *testing.T) {
	b := New[string, int]()
	b.Expect("A")
	assert.False(t, b.Put("Z", 9))
	_, ok := b.Get("Z")
	assert.False(t, ok)

	b.Put("A", 1)
	v, ok := b.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBarrier_EmptyIsReady(t *testing.T) {
	b := New[string, int]()
	assert.True(t, b.Ready())
	assert.Empty(t, b.Values())
}
