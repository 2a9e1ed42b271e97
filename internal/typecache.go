package internal

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// TypeCache holds one lazily built value per reflect.Type.
//
// Hits are served from a sync.Map without locking. A miss takes a mutex
// private to that type, re-checks, and only then builds, so concurrent
// first encounters of one type build it exactly once while different
// types never wait on each other.
type TypeCache[V any] struct {
	entries sync.Map // reflect.Type -> V
	locks   sync.Map // reflect.Type -> *sync.Mutex

	hits   int64
	misses int64
	builds int64
}

// Load returns the cached value for t, calling build on first use.
// build must not call Load for the same type.
func (c *TypeCache[V]) Load(t reflect.Type, build func(reflect.Type) V) V {
	if v, ok := c.entries.Load(t); ok {
		atomic.AddInt64(&c.hits, 1)
		return v.(V)
	}
	atomic.AddInt64(&c.misses, 1)

	lock, _ := c.locks.LoadOrStore(t, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if v, ok := c.entries.Load(t); ok {
		return v.(V)
	}
	v := build(t)
	c.entries.Store(t, v)
	atomic.AddInt64(&c.builds, 1)
	return v
}

// Peek returns the cached value without building
func (c *TypeCache[V]) Peek(t reflect.Type) (V, bool) {
	if v, ok := c.entries.Load(t); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// Invalidate forgets the value for one type
func (c *TypeCache[V]) Invalidate(t reflect.Type) {
	c.entries.Delete(t)
}

// Clear forgets every value
func (c *TypeCache[V]) Clear() {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}

// Stats reports hits, misses and completed builds
func (c *TypeCache[V]) Stats() (hits, misses, builds int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), atomic.LoadInt64(&c.builds)
}
