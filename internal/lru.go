package internal

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a mutex-guarded cache with least-recently-used eviction.
// A capacity of zero or less means the cache never evicts.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	items     map[K]*list.Element
	evictList *list.List
	capacity  int

	hits      int64
	misses    int64
	evictions int64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// CacheStats is a snapshot of cache counters
type CacheStats struct {
	Entries   int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRatio returns hits as a percentage of lookups
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// NewLRU creates a cache holding at most capacity entries
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	hint := capacity
	if hint <= 0 || hint > 1024 {
		hint = 64
	}
	return &LRU[K, V]{
		items:     make(map[K]*list.Element, hint),
		evictList: list.New(),
		capacity:  capacity,
	}
}

// Get returns the cached value and marks it most recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(elem)
	value := elem.Value.(*lruEntry[K, V]).value
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Peek returns the cached value without touching recency
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Add stores a value and reports whether an older entry was evicted
func (c *LRU[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry[K, V]).value = value
		c.evictList.MoveToFront(elem)
		return false
	}

	c.items[key] = c.evictList.PushFront(&lruEntry[K, V]{key: key, value: value})

	if c.capacity > 0 && c.evictList.Len() > c.capacity {
		c.removeOldest()
		return true
	}
	return false
}

// Remove deletes a key and reports whether it was present
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Len returns the number of cached entries
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Keys returns keys from most to least recently used
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.evictList.Len())
	for elem := c.evictList.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Clear drops every entry but keeps the counters
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.evictList.Init()
}

// Stats returns a snapshot of the cache counters
func (c *LRU[K, V]) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Capacity:  c.capacity,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

func (c *LRU[K, V]) removeOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry[K, V]).key)
}
