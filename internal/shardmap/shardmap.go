// Package shardmap provides a fixed-width sharded map used to hold the
// load balancer's per-key mutable state (health counters, sticky routes)
// without serializing every reader and writer behind one global lock.
package shardmap

import (
	"hash/fnv"
	"sync"
)

// ShardCount partitions keys across 256 independent locks, so contention
// under load is roughly 1/256th of what a single global mutex would see.
const ShardCount = 256

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrency-safe map sharded by an FNV-1a hash of the key.
// Readers on different shards never block each other; writers only ever
// hold the lock for the one shard they touch.
type Map[V any] struct {
	shards [ShardCount]*shard[V]
}

// New creates a ready-to-use sharded map.
func New[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%ShardCount]
}

// Get returns the value stored for key, if any.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value for key, replacing any previous value (last-write-wins).
func (m *Map[V]) Set(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// Delete removes key if present.
func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Update atomically loads the current value (zero value if absent), applies
// fn, and stores the result back under the same shard lock — the
// single-writer-per-key guard the concurrency model requires for counters
// like consecutive_failures and consecutive_hits.
func (m *Map[V]) Update(key string, fn func(current V, found bool) V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key]
	s.items[key] = fn(cur, ok)
}

// Len returns the total number of entries across all shards. Intended for
// status/diagnostics endpoints, not hot-path use.
func (m *Map[V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Range iterates every entry. fn is called sequentially on the caller's
// goroutine (Range takes each shard's read lock in turn); it must not call
// a writing method of the same Map or it will deadlock on that shard.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
