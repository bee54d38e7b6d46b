package triava

import (
	"hash/maphash"
	"sync"
)

// mapShard is one slice of the storage map: a plain map guarded by its own
// RWMutex. Splitting the map into shards (see storageMap.shardFor) lets
// independent keys be mutated without contending on a single lock, which
// is the concurrency_level knob's whole purpose.
type mapShard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*holder[V]
}

func newMapShard[K comparable, V any](sizeHint int) *mapShard[K, V] {
	return &mapShard[K, V]{m: make(map[K]*holder[V], sizeHint)}
}

func (s *mapShard[K, V]) load(key K) (*holder[V], bool) {
	s.mu.RLock()
	h, ok := s.m[key]
	s.mu.RUnlock()
	return h, ok
}

// store unconditionally replaces the mapping and returns the previous
// holder, if any.
func (s *mapShard[K, V]) store(key K, h *holder[V]) (old *holder[V], hadOld bool) {
	s.mu.Lock()
	old, hadOld = s.m[key]
	s.m[key] = h
	s.mu.Unlock()
	return old, hadOld
}

// loadOrStore is the CAS insert-if-absent primitive behind PutIfAbsent.
func (s *mapShard[K, V]) loadOrStore(key K, h *holder[V]) (actual *holder[V], loaded bool) {
	s.mu.Lock()
	if existing, ok := s.m[key]; ok {
		s.mu.Unlock()
		return existing, true
	}
	s.m[key] = h
	s.mu.Unlock()
	return h, false
}

// compareAndSwap replaces the mapping for key only if the current holder
// is identically old (pointer equality), and reports whether it did.
func (s *mapShard[K, V]) compareAndSwap(key K, old, new *holder[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.m[key]
	if !ok || current != old {
		return false
	}
	s.m[key] = new
	return true
}

// compareAndDelete removes the mapping for key only if the current holder
// is identically expect, and reports whether it did.
func (s *mapShard[K, V]) compareAndDelete(key K, expect *holder[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.m[key]
	if !ok || current != expect {
		return false
	}
	delete(s.m, key)
	return true
}

// delete removes key unconditionally and returns the holder that was
// there, if any.
func (s *mapShard[K, V]) delete(key K) (old *holder[V], had bool) {
	s.mu.Lock()
	old, had = s.m[key]
	if had {
		delete(s.m, key)
	}
	s.mu.Unlock()
	return old, had
}

func (s *mapShard[K, V]) len() int {
	s.mu.RLock()
	n := len(s.m)
	s.mu.RUnlock()
	return n
}

func (s *mapShard[K, V]) clear() {
	s.mu.Lock()
	s.m = make(map[K]*holder[V])
	s.mu.Unlock()
}

// snapshot copies the current (key, holder) pairs. Used by the expiration
// sweeper and eviction worker, which both need to walk the map without
// holding a shard lock for the duration of their own work.
func (s *mapShard[K, V]) snapshot() []kv[K, V] {
	s.mu.RLock()
	out := make([]kv[K, V], 0, len(s.m))
	for k, h := range s.m {
		out = append(out, kv[K, V]{k, h})
	}
	s.mu.RUnlock()
	return out
}

type kv[K comparable, V any] struct {
	key K
	h   *holder[V]
}

// storageMap is the sharded concurrent map backing a Cache: a
// mapping from K to *holder[V], with best-effort size and weakly
// consistent iteration (snapshot-based, so a concurrent Put or Remove
// during iteration is reflected or not, but never corrupts the walk).
type storageMap[K comparable, V any] struct {
	shards []*mapShard[K, V]
	seed   maphash.Seed
}

func newStorageMap[K comparable, V any](shardCount, expectedSize int) *storageMap[K, V] {
	if shardCount < 1 {
		shardCount = 1
	}
	sizeHint := expectedSize / shardCount
	shards := make([]*mapShard[K, V], shardCount)
	for i := range shards {
		shards[i] = newMapShard[K, V](sizeHint)
	}
	return &storageMap[K, V]{shards: shards, seed: maphash.MakeSeed()}
}

func (sm *storageMap[K, V]) shardFor(key K) *mapShard[K, V] {
	h := maphash.Comparable(sm.seed, key)
	return sm.shards[h%uint64(len(sm.shards))]
}

func (sm *storageMap[K, V]) size() int {
	n := 0
	for _, s := range sm.shards {
		n += s.len()
	}
	return n
}

func (sm *storageMap[K, V]) clear() {
	for _, s := range sm.shards {
		s.clear()
	}
}

// snapshot walks every shard and returns every (key, holder) pair present
// at the time each shard was visited. Because shards are visited one at a
// time rather than under one global lock, this is weakly consistent: it
// reflects some live state of the map, not necessarily a single instant
// across all shards.
func (sm *storageMap[K, V]) snapshot() []kv[K, V] {
	var out []kv[K, V]
	for _, s := range sm.shards {
		out = append(out, s.snapshot()...)
	}
	return out
}
