package triava

import (
	"math/rand"
	"sync/atomic"
	"time"
)

// compactTime packs a duration into whole seconds when it is a whole
// number of seconds, and otherwise into milliseconds tagged by bit 62
// (the highest bit below the sign bit). This keeps a holder's two
// duration fields to a single int64 each while still round-tripping
// sub-second durations of whole milliseconds (useful for fast-expiring
// caches and tests), which a seconds-only encoding could not do. Any
// remainder below one millisecond is dropped.
type compactTime int64

const compactMillisFlag = int64(1) << 62

func newCompactTime(d time.Duration) compactTime {
	if d <= 0 {
		return 0
	}
	if d%time.Second == 0 {
		return compactTime(int64(d / time.Second))
	}
	return compactTime(int64(d/time.Millisecond) | compactMillisFlag)
}

func (c compactTime) millis() int64 {
	v := int64(c)
	if v == 0 {
		return 0
	}
	if v&compactMillisFlag != 0 {
		return v &^ compactMillisFlag
	}
	return v * 1000
}

func (c compactTime) Duration() time.Duration {
	return time.Duration(c.millis()) * time.Millisecond
}

// holder state flags.
const (
	stateIncomplete int32 = 0
	stateComplete   int32 = 1
)

// storedValue is what a holder's value pointer actually points to: either
// the live value (WriteModeIdentity) or its encoded bytes
// (WriteModeSerialize), never both populated at once.
type storedValue[V any] struct {
	val       V
	raw       []byte
	serialize bool
}

// holder is the per-entry metadata+value container described by the data
// model: a holder is visible to readers iff its value pointer is non-nil,
// it has been completed, and it is not expired. release() is the only way
// the value pointer transitions back to nil, and it is safe to call after
// the holder has already been removed from the map — readers that grabbed
// a reference before removal must still observe it as released.
type holder[V any] struct {
	value atomic.Pointer[storedValue[V]]

	state atomic.Int32

	inputTime  int64 // ms offset from baseTime; set once in complete()
	lastAccess atomic.Int64

	maxIdle      compactTime
	maxCacheTime compactTime

	// expireUntil, if non-zero, is an absolute ms-offset deadline that
	// overrides the natural one for mass-expiration scenarios. It can
	// only be tightened, never loosened — see setExpireUntil.
	expireUntil atomic.Int64

	// useCount is incremented without synchronization on the read path
	// by design: it is only ever used as a relative ordering hint for
	// LFU eviction, and losing the occasional increment under
	// contention is cheaper than a read-path atomic fence.
	useCount int32
}

func newHolder[V any](val V, writeMode WriteMode, codec Codec[V]) (*holder[V], error) {
	h := &holder[V]{}
	sv := &storedValue[V]{}
	if writeMode == WriteModeSerialize {
		raw, err := codec.Encode(val)
		if err != nil {
			return nil, err
		}
		sv.raw = raw
		sv.serialize = true
	} else {
		sv.val = val
	}
	h.value.Store(sv)
	return h, nil
}

// complete finalizes the expiry fields and flips the holder to visible.
// It must be called before the holder is published into the storage map.
func (h *holder[V]) complete(clock *coarseClock, maxIdle, maxCacheTime time.Duration) {
	now := clock.nowMillis()
	h.inputTime = now
	h.lastAccess.Store(now)
	h.maxIdle = newCompactTime(maxIdle)
	h.maxCacheTime = newCompactTime(maxCacheTime)
	h.state.Store(stateComplete)
}

func (h *holder[V]) isComplete() bool {
	return h.state.Load() == stateComplete
}

// peek returns the value without touching access time or use count.
func (h *holder[V]) peek(codec Codec[V]) (V, bool, error) {
	sv := h.value.Load()
	if sv == nil {
		var zero V
		return zero, false, nil
	}
	if sv.serialize {
		v, err := codec.Decode(sv.raw)
		if err != nil {
			var zero V
			return zero, false, err
		}
		return v, true, nil
	}
	return sv.val, true, nil
}

// get is peek plus a last-access update.
func (h *holder[V]) get(clock *coarseClock, codec Codec[V]) (V, bool, error) {
	v, ok, err := h.peek(codec)
	if ok {
		h.lastAccess.Store(clock.nowMillis())
	}
	return v, ok, err
}

// incrementUseCount is intentionally non-atomic; see the useCount field
// comment.
func (h *holder[V]) incrementUseCount() {
	h.useCount++
}

func (h *holder[V]) getUseCount() int64 {
	return int64(h.useCount)
}

func (h *holder[V]) getLastAccessMillis() int64 {
	return h.lastAccess.Load()
}

func (h *holder[V]) getInputTimeMillis() int64 {
	return h.inputTime
}

// isInvalid reports whether the holder should be treated as expired:
// released, incomplete, too old, too idle, or past an explicit
// expire-until deadline.
func (h *holder[V]) isInvalid(nowMillis int64) bool {
	if h.state.Load() != stateComplete {
		return true
	}
	if h.value.Load() == nil {
		return true
	}
	if until := h.expireUntil.Load(); until != 0 && nowMillis >= until {
		return true
	}
	if mc := h.maxCacheTime.millis(); mc > 0 && nowMillis-h.inputTime > mc {
		return true
	}
	if mi := h.maxIdle.millis(); mi > 0 && nowMillis-h.lastAccess.Load() > mi {
		return true
	}
	return false
}

// release publishes NULL, invalidating the holder forever. It returns
// whether this call was the one that effected the release: at most one
// call across all callers ever returns true, because atomic.Pointer.Swap
// is itself linearizable and every caller after the first observes the
// nil left behind by it.
func (h *holder[V]) release() bool {
	old := h.value.Swap(nil)
	return old != nil
}

// setExpireUntil schedules a randomized earlier expiration in
// [0, maxDelay], used to spread out mass-expiration events (e.g. an
// administrative "expire everything touched before time T" sweep) instead
// of letting every affected entry expire in the same instant. It never
// extends an existing deadline, whether natural or previously tightened.
func (h *holder[V]) setExpireUntil(clock *coarseClock, maxDelay time.Duration, rnd *rand.Rand) {
	if maxDelay <= 0 {
		return
	}
	now := clock.nowMillis()
	delayMillis := rnd.Int63n(maxDelay.Milliseconds() + 1)
	candidate := now + delayMillis

	for {
		current := h.expireUntil.Load()
		if current != 0 && current <= candidate {
			return
		}
		natural := h.naturalDeadline()
		if natural != 0 && natural <= candidate {
			return
		}
		if h.expireUntil.CompareAndSwap(current, candidate) {
			return
		}
	}
}

// naturalDeadline returns the absolute ms-offset at which the holder would
// expire from max_cache_time alone (0 if unbounded).
func (h *holder[V]) naturalDeadline() int64 {
	mc := h.maxCacheTime.millis()
	if mc <= 0 {
		return 0
	}
	return h.inputTime + mc
}
