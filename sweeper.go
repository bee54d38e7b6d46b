package triava

import (
	"sync"
	"time"
)

// sweeper is the background expiration worker. It walks a weakly
// consistent snapshot of the map on a fixed interval, releasing and
// removing any holder that has gone idle or aged out. It stops itself
// once a walk finds the map empty (no point ticking against nothing) and
// is restarted by the next mutating cache call via ensureRunning, rather
// than running a single global thread shared across caches.
type sweeper[K comparable, V any] struct {
	cache    *Cache[K, V]
	interval time.Duration

	mu       sync.Mutex
	running  bool
	halted   bool
	failures int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newSweeper[K comparable, V any](c *Cache[K, V], interval time.Duration) *sweeper[K, V] {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &sweeper[K, V]{cache: c, interval: interval}
	s.ensureRunning()
	return s
}

// ensureRunning (re)starts the sweep loop if it is not already running and
// has not permanently halted. Safe to call on every mutating operation.
func (s *sweeper[K, V]) ensureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.halted {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	go s.loop(stop, done)
}

func (s *sweeper[K, V]) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.sweepOnce() {
				return
			}
		}
	}
}

// sweepOnce runs one sweep pass and returns whether the loop should keep
// going. It returns false both on a self-stop (empty map) and on a
// permanent halt (10 consecutive failed passes).
func (s *sweeper[K, V]) sweepOnce() bool {
	c := s.cache
	snap := c.storage.snapshot()
	if len(snap) == 0 {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return false
	}

	failed := s.walk(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if failed {
		s.failures++
		opLog().Warn("expiration sweep failed", "consecutive_failures", s.failures)
		if s.failures >= 10 {
			s.halted = true
			s.running = false
			opLog().Error("expiration sweeper halting after repeated failures")
			return false
		}
		return true
	}
	s.failures = 0
	return true
}

// walk removes every invalid holder in snap, recovering from a panic in
// any single listener dispatch so one bad registration can't take down
// the sweeper.
func (s *sweeper[K, V]) walk(snap []kv[K, V]) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			opLog().Error("expiration sweep panicked", "panic", r)
			failed = true
		}
	}()
	c := s.cache
	now := c.clock.nowMillis()
	for _, item := range snap {
		if !item.h.isInvalid(now) {
			continue
		}
		shard := c.storage.shardFor(item.key)
		if shard.compareAndDelete(item.key, item.h) {
			item.h.release()
			c.listeners.dispatch(Event[K, V]{Kind: EventExpired, Key: item.key})
		}
	}
	return false
}

func (s *sweeper[K, V]) close() {
	s.mu.Lock()
	running := s.running
	stop, done := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()
	if running {
		close(stop)
		<-done
	}
}
