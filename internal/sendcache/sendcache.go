// Package sendcache implements the fixed-capacity ring of recently
// self-sent message identifiers used to suppress backend echo.
//
// Grounded on original_source/src/util.rs's Cache<T>: a slice that fills
// up to capacity and then overwrites the oldest slot, advancing an index
// modulo the capacity. contains is a linear scan; eviction is always by
// overwrite, never by explicit removal.
package sendcache

import "github.com/google/uuid"

// Capacity is the fixed ring size mandated by the specification.
const Capacity = 256

// Cache is a fixed-capacity ring buffer of message ids.
//
// It is not safe for concurrent use; a Cache is owned exclusively by one
// bridge session, which only ever touches it from its single goroutine.
type Cache struct {
	ids [Capacity]string
	len int
	idx int
}

// New returns an empty send cache.
func New() *Cache {
	return &Cache{}
}

// Emit generates a fresh message id, records it in the ring, and returns it.
func (c *Cache) Emit() string {
	id := uuid.NewString()
	if c.len < Capacity {
		c.ids[c.len] = id
		c.len++
	} else {
		c.ids[c.idx] = id
		c.idx = (c.idx + 1) % Capacity
	}
	return id
}

// Contains reports whether id is currently remembered by the cache.
func (c *Cache) Contains(id string) bool {
	for i := 0; i < c.len; i++ {
		if c.ids[i] == id {
			return true
		}
	}
	return false
}
