package triava

import (
	"sync"
	"sync/atomic"
	"time"
)

// slidingWindowCounter tracks a rate over a fixed number of one-second
// buckets, used for the eviction rate. A ring of per-second buckets that
// is rotated lazily, on the next increment or read after the second has
// rolled over, rather than by its own ticker.
type slidingWindowCounter struct {
	mu       sync.Mutex
	buckets  []int64
	bucketAt int64 // unix second the current head bucket belongs to
	head     int
}

func newSlidingWindowCounter(seconds int) *slidingWindowCounter {
	if seconds <= 0 {
		seconds = 60
	}
	return &slidingWindowCounter{
		buckets:  make([]int64, seconds),
		bucketAt: time.Now().Unix(),
	}
}

func (s *slidingWindowCounter) rotate(nowUnix int64) {
	elapsed := nowUnix - s.bucketAt
	if elapsed <= 0 {
		return
	}
	n := int64(len(s.buckets))
	if elapsed >= n {
		for i := range s.buckets {
			s.buckets[i] = 0
		}
		s.head = 0
	} else {
		for i := int64(0); i < elapsed; i++ {
			s.head = (s.head + 1) % len(s.buckets)
			s.buckets[s.head] = 0
		}
	}
	s.bucketAt = nowUnix
}

func (s *slidingWindowCounter) Add(n int64) {
	now := time.Now().Unix()
	s.mu.Lock()
	s.rotate(now)
	s.buckets[s.head] += n
	s.mu.Unlock()
}

// RatePerSecond returns the average per-second rate over the window.
func (s *slidingWindowCounter) RatePerSecond() float64 {
	now := time.Now().Unix()
	s.mu.Lock()
	s.rotate(now)
	var total int64
	for _, v := range s.buckets {
		total += v
	}
	n := len(s.buckets)
	s.mu.Unlock()
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// Stats is a point-in-time snapshot of a cache's statistics counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Puts            int64
	Removes         int64
	Drops           int64
	EvictionCount   int64
	EvictionRounds  int64
	EvictionHalts   int64
	EvictionRate    float64 // per second, averaged over the last 60s
	HitRatioPercent float64 // 5-sample moving average, recomputed at most once per minute
}

// statsRecorder is the interface a cache records statistics through.
// atomicStatsRecorder is the real, atomic-counter-backed implementation;
// disabling statistics swaps in noopStatsRecorder instead, discarding
// whatever had accumulated.
type statsRecorder interface {
	recordHit()
	recordMiss()
	recordPut()
	recordRemove()
	recordDrop()
	recordEviction(n int64)
	recordEvictionRound()
	recordEvictionHalt()
	snapshot() Stats
}

type atomicStatsRecorder struct {
	hits, misses, puts, removes, drops           atomic.Int64
	evictionCount, evictionRounds, evictionHalts atomic.Int64
	evictionRate                                 *slidingWindowCounter

	mu                  sync.Mutex
	lastRecompute       time.Time
	samples             [5]float64
	sampleIdx           int
	sampleCount         int
	lastHits, lastMisses int64
	cachedRatio         float64
}

func newAtomicStatsRecorder() *atomicStatsRecorder {
	return &atomicStatsRecorder{evictionRate: newSlidingWindowCounter(60)}
}

func (s *atomicStatsRecorder) recordHit()    { s.hits.Add(1) }
func (s *atomicStatsRecorder) recordMiss()   { s.misses.Add(1) }
func (s *atomicStatsRecorder) recordPut()    { s.puts.Add(1) }
func (s *atomicStatsRecorder) recordRemove() { s.removes.Add(1) }
func (s *atomicStatsRecorder) recordDrop()   { s.drops.Add(1) }
func (s *atomicStatsRecorder) recordEvictionRound() {
	s.evictionRounds.Add(1)
}
func (s *atomicStatsRecorder) recordEvictionHalt() { s.evictionHalts.Add(1) }
func (s *atomicStatsRecorder) recordEviction(n int64) {
	if n <= 0 {
		return
	}
	s.evictionCount.Add(n)
	s.evictionRate.Add(n)
}

// hitRatio recomputes a 5-sample moving average of the hit ratio at most
// once per minute. Each recomputation snapshots the hit/miss totals
// relative only to itself (the delta since the previous recomputation),
// not to the concurrent mutators — those are plain atomic increments and
// eventual consistency here is acceptable per the design.
func (s *atomicStatsRecorder) hitRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.lastRecompute.IsZero() && now.Sub(s.lastRecompute) < time.Minute {
		return s.cachedRatio
	}

	hits := s.hits.Load()
	misses := s.misses.Load()
	dh := hits - s.lastHits
	dm := misses - s.lastMisses
	s.lastHits, s.lastMisses = hits, misses
	s.lastRecompute = now

	total := dh + dm
	var sample float64
	if total > 0 {
		sample = 100 * float64(dh) / float64(total)
	}

	s.samples[s.sampleIdx] = sample
	s.sampleIdx = (s.sampleIdx + 1) % len(s.samples)
	if s.sampleCount < len(s.samples) {
		s.sampleCount++
	}

	var sum float64
	for i := 0; i < s.sampleCount; i++ {
		sum += s.samples[i]
	}
	ratio := sum / float64(s.sampleCount)
	if ratio < 0 {
		ratio = 0
	} else if ratio > 100 {
		ratio = 100
	}
	s.cachedRatio = ratio
	return ratio
}

func (s *atomicStatsRecorder) snapshot() Stats {
	return Stats{
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		Puts:            s.puts.Load(),
		Removes:         s.removes.Load(),
		Drops:           s.drops.Load(),
		EvictionCount:   s.evictionCount.Load(),
		EvictionRounds:  s.evictionRounds.Load(),
		EvictionHalts:   s.evictionHalts.Load(),
		EvictionRate:    s.evictionRate.RatePerSecond(),
		HitRatioPercent: s.hitRatio(),
	}
}

// noopStatsRecorder is installed when statistics are disabled.
type noopStatsRecorder struct{}

func (noopStatsRecorder) recordHit()            {}
func (noopStatsRecorder) recordMiss()           {}
func (noopStatsRecorder) recordPut()            {}
func (noopStatsRecorder) recordRemove()         {}
func (noopStatsRecorder) recordDrop()           {}
func (noopStatsRecorder) recordEviction(int64)  {}
func (noopStatsRecorder) recordEvictionRound()  {}
func (noopStatsRecorder) recordEvictionHalt()   {}
func (noopStatsRecorder) snapshot() Stats       { return Stats{} }
