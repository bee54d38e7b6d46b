package triava

import (
	"sort"
	"sync"
	"time"
)

// evictor is the background eviction worker for a bounded cache. It spends
// almost all its life idle, woken by a bounded, duplicate-collapsing
// signal channel whenever a write pushes the cache at or over its
// user-data threshold: a freeze-snapshot-sort-remove round, sized by
// elementsToRemove. A write that pushes the cache further, to the block
// threshold, is held by a WAIT jam policy until a round brings size back
// down, or rejected outright under DROP.
type evictor[K comparable, V any] struct {
	cache *Cache[K, V]

	signal chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	mu                  sync.Mutex
	cond                *sync.Cond
	consecutiveFailures int
	halted              bool
}

func newEvictor[K comparable, V any](c *Cache[K, V]) *evictor[K, V] {
	e := &evictor[K, V]{
		cache:  c,
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// requestEviction asks the worker to run a round soon. Multiple requests
// before the worker wakes collapse into a single round, since the signal
// channel has capacity 1 and a non-blocking send.
func (e *evictor[K, V]) requestEviction() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// waitUntilUnderBlock blocks the caller (a Put-family call under
// JamPolicyWait) until the cache is back under its block threshold, or
// the evictor has halted.
func (e *evictor[K, V]) waitUntilUnderBlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.halted && e.cache.storage.size() > e.cache.marks.blockStartAt {
		select {
		case e.signal <- struct{}{}:
		default:
		}
		e.cond.Wait()
	}
}

func (e *evictor[K, V]) run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.signal:
			if !e.runRound() {
				return
			}
		}
	}
}

// runRound executes one eviction round and reports whether the worker
// should keep running. It stops permanently after 10 consecutive
// failures, the same halt-and-log behavior as the sweeper.
func (e *evictor[K, V]) runRound() bool {
	err := e.evictOnce()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.consecutiveFailures++
		opLog().Error("eviction round failed", "error", err, "consecutive_failures", e.consecutiveFailures)
		if e.consecutiveFailures >= 10 {
			e.halted = true
			e.cache.stats.recordEvictionHalt()
			opLog().Error("eviction worker halting after repeated failures")
			e.cond.Broadcast()
			return false
		}
		e.cond.Broadcast()
		return true
	}

	e.consecutiveFailures = 0
	e.cache.stats.recordEvictionRound()
	e.cond.Broadcast()
	return true
}

// evictOnce samples the live map, scores and sorts the sample with the
// configured EvictionPolicy, and removes entries from the low end of the
// sort until the cache is back at or under evictUntilAtLeast. It never
// evicts an entry that was already invalid at sample time; those are left
// for the sweeper (or simply skipped, since removing them wouldn't reduce
// live size anyway once the sweeper catches up).
func (e *evictor[K, V]) evictOnce() error {
	c := e.cache
	size := c.storage.size()
	if size < c.marks.userDataElements {
		return nil
	}
	toRemove := size - c.marks.evictUntilAtLeast
	if toRemove <= 0 {
		return nil
	}

	snap := c.storage.snapshot()
	now := c.clock.nowMillis()

	c.policy.BeforeRound()
	scored := make([]ScoredEntry[K], 0, len(snap))
	for _, item := range snap {
		if item.h.isInvalid(now) {
			continue
		}
		entry := Entry[K]{
			Key:        item.key,
			UseCount:   item.h.getUseCount(),
			LastAccess: baseTime.Add(time.Duration(item.h.getLastAccessMillis()) * time.Millisecond),
			InputTime:  baseTime.Add(time.Duration(item.h.getInputTimeMillis()) * time.Millisecond),
		}
		scored = append(scored, ScoredEntry[K]{Entry: entry, Score: c.policy.Freeze(entry)})
	}
	c.policy.AfterRound()

	sort.Slice(scored, func(i, j int) bool { return c.policy.Less(scored[i], scored[j]) })

	if toRemove > len(scored) {
		toRemove = len(scored)
	}
	var evicted int64
	for i := 0; i < toRemove; i++ {
		key := scored[i].Entry.Key
		shard := c.storage.shardFor(key)
		h, ok := shard.load(key)
		if !ok {
			continue
		}
		if shard.compareAndDelete(key, h) {
			h.release()
			evicted++
			c.listeners.dispatch(Event[K, V]{Kind: EventRemoved, Key: key})
		}
	}
	c.stats.recordEviction(evicted)
	return nil
}

func (e *evictor[K, V]) close() {
	close(e.stopCh)
	e.mu.Lock()
	e.halted = true
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.doneCh
}
