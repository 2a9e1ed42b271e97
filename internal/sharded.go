package internal

import (
	"github.com/cespare/xxhash/v2"
)

// ShardedLRU spreads string keys over independent LRU shards so that
// unrelated lookups do not contend on one mutex.
type ShardedLRU[V any] struct {
	shards []*LRU[string, V]
	mask   uint64
}

// NewShardedLRU creates a sharded cache whose total capacity is split
// evenly across shards. A non-positive capacity makes every shard unbounded.
func NewShardedLRU[V any](capacity int) *ShardedLRU[V] {
	count := shardCountFor(capacity)
	perShard := 0
	if capacity > 0 {
		perShard = (capacity + count - 1) / count
	}
	shards := make([]*LRU[string, V], count)
	for i := range shards {
		shards[i] = NewLRU[string, V](perShard)
	}
	return &ShardedLRU[V]{shards: shards, mask: uint64(count - 1)}
}

// shardCountFor picks a power-of-two shard count from the capacity
func shardCountFor(capacity int) int {
	switch {
	case capacity <= 0 || capacity > 10000:
		return 32
	case capacity > 1000:
		return 16
	case capacity > 64:
		return 8
	default:
		return 1
	}
}

func (s *ShardedLRU[V]) shard(key string) *LRU[string, V] {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

// Get looks a key up in its shard
func (s *ShardedLRU[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

// Add stores a key in its shard
func (s *ShardedLRU[V]) Add(key string, value V) bool {
	return s.shard(key).Add(key, value)
}

// Remove deletes a key from its shard
func (s *ShardedLRU[V]) Remove(key string) bool {
	return s.shard(key).Remove(key)
}

// Clear empties every shard
func (s *ShardedLRU[V]) Clear() {
	for _, sh := range s.shards {
		sh.Clear()
	}
}

// Stats aggregates the counters of all shards
func (s *ShardedLRU[V]) Stats() CacheStats {
	var total CacheStats
	for _, sh := range s.shards {
		st := sh.Stats()
		total.Entries += st.Entries
		total.Capacity += st.Capacity
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Evictions += st.Evictions
	}
	return total
}
