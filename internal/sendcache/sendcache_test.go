package sendcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmit_RecordsAndContains(t *testing.T) {
	c := New()
	id := c.Emit()
	assert.True(t, c.Contains(id))
	assert.False(t, c.Contains("never-emitted"))
}

func TestCache_RingEviction(t *testing.T) {
	c := New()

	first := c.Emit()
	var last string
	for i := 0; i < Capacity-1; i++ {
		last = c.Emit()
	}
	// Capacity ids emitted so far; first is still the oldest and present.
	assert.True(t, c.Contains(first))
	assert.True(t, c.Contains(last))

	// One more emit should evict exactly the oldest (first).
	newest := c.Emit()
	assert.False(t, c.Contains(first))
	assert.True(t, c.Contains(last))
	assert.True(t, c.Contains(newest))
}

func TestCache_RetainsExactlyLastCapacity(t *testing.T) {
	c := New()
	n := Capacity + 50
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = c.Emit()
	}

	for i := 0; i < n-Capacity; i++ {
		assert.False(t, c.Contains(ids[i]), "expected id %d to be evicted", i)
	}
	for i := n - Capacity; i < n; i++ {
		assert.True(t, c.Contains(ids[i]), "expected id %d to be retained", i)
	}
}
