package triava

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache is a thread-safe, in-process key/value cache. The zero value is not
// usable; construct one with New. Grounded on robteix-cache's Cache, whose
// shard-per-lock storage and New(opts ...Option) shape this generalizes to
// a typed, expiring, optionally bounded, optionally read/write-through
// cache.
type Cache[K comparable, V any] struct {
	id   string
	opts options[K, V]

	storage *storageMap[K, V]
	clock   *coarseClock
	stats   statsRecorder
	codec   Codec[V]
	marks   capacityMarks
	policy  EvictionPolicy[K]

	listeners *listenerSet[K, V]
	loadG     *loadGroup[K, V]

	evictor *evictor[K, V]
	sweeper *sweeper[K, V]

	rndMu sync.Mutex
	rnd   *rand.Rand

	closeOnce         sync.Once
	closed            chan struct{}
	unregisterMetrics func()
}

// New builds a Cache from the given options. A construction-time
// configuration error (e.g. a CUSTOM eviction policy without
// WithCustomEvictionPolicy) panics, since it reflects a programmer
// mistake in option wiring rather than a runtime condition to recover
// from.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	o := defaultOptions[K, V]()
	for _, opt := range opts {
		opt.apply(&o)
	}

	if err := o.Config.validate(o.customPolicy != nil); err != nil {
		panic(err)
	}

	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}

	codec := o.codec
	if codec == nil {
		codec = noopCodec[V]{}
	}

	var policy EvictionPolicy[K]
	if o.EvictionPolicy == CUSTOM {
		policy = o.customPolicy
	} else {
		policy = newBuiltinPolicy[K](o.EvictionPolicy)
	}

	var stats statsRecorder
	if o.StatisticsEnabled {
		stats = newAtomicStatsRecorder()
	} else {
		stats = noopStatsRecorder{}
	}

	c := &Cache[K, V]{
		id:        id,
		opts:      o,
		storage:   newStorageMap[K, V](o.ConcurrencyLevel, o.ExpectedSize),
		clock:     newCoarseClock(o.TickInterval),
		stats:     stats,
		codec:     codec,
		marks:     computeCapacityMarks(o.ExpectedSize),
		policy:    policy,
		listeners: newListenerSet[K, V](o.ConcurrencyLevel),
		loadG:     &loadGroup[K, V]{},
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		closed:    make(chan struct{}),
	}

	if policy != nil {
		c.evictor = newEvictor(c)
	}

	interval := o.CleanupInterval
	if interval <= 0 {
		if o.MaxIdleTime > 0 {
			interval = o.MaxIdleTime / 10
		} else {
			interval = 30 * time.Second
		}
	}
	c.sweeper = newSweeper(c, interval)

	if o.prometheus != nil {
		unregister, err := RegisterPrometheus(o.prometheus, c)
		if err != nil {
			opLog().Error("prometheus registration failed", "cache", c.id, "error", err)
		} else {
			c.unregisterMetrics = unregister
		}
	}

	return c
}

// ID returns the cache's name, either given via WithID or generated.
func (c *Cache[K, V]) ID() string { return c.id }

// Stats returns a point-in-time snapshot of the cache's statistics
// counters. If statistics were disabled via WithStatistics(false), every
// field is zero.
func (c *Cache[K, V]) Stats() Stats { return c.stats.snapshot() }

// Size returns the approximate number of entries currently held,
// including entries that have expired but have not yet been swept.
func (c *Cache[K, V]) Size() int { return c.storage.size() }

func (c *Cache[K, V]) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close stops the cache's background workers. It does not clear the
// stored entries; a closed Cache simply stops expiring and evicting them
// and rejects further mutating calls with ErrClosedCache.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.evictor != nil {
			c.evictor.close()
		}
		c.sweeper.close()
		c.listeners.close()
		c.clock.Close()
		if c.unregisterMetrics != nil {
			c.unregisterMetrics()
		}
	})
}

func (c *Cache[K, V]) checkTypes(key K, val V) error {
	if c.opts.keyType != nil && reflect.TypeOf(key) != c.opts.keyType {
		return fmt.Errorf("%w: key type %T does not match declared key type %s", ErrInvalidConfig, key, c.opts.keyType)
	}
	if c.opts.valueType != nil {
		if t := reflect.TypeOf(val); t != nil && t != c.opts.valueType {
			return fmt.Errorf("%w: value type %T does not match declared value type %s", ErrInvalidConfig, val, c.opts.valueType)
		}
	}
	return nil
}

func (c *Cache[K, V]) maxCacheTimeWithSpread() time.Duration {
	d := c.opts.MaxCacheTime
	if c.opts.MaxCacheTimeSpread <= 0 || d <= 0 {
		return d
	}
	c.rndMu.Lock()
	extra := time.Duration(c.rnd.Int63n(int64(c.opts.MaxCacheTimeSpread) + 1))
	c.rndMu.Unlock()
	return d + extra
}

func (c *Cache[K, V]) newCompletedHolder(val V) (*holder[V], error) {
	h, err := newHolder[V](val, c.opts.WriteMode, c.codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationError, err)
	}
	h.complete(c.clock, c.opts.MaxIdleTime, c.maxCacheTimeWithSpread())
	return h, nil
}

// touch runs the housekeeping every mutating call needs: waking the
// sweeper if it self-stopped on an empty map, and applying the jam policy
// if the cache is at or over its block threshold. It returns ErrDropped
// under JamPolicyDrop when the caller should not proceed with its write.
func (c *Cache[K, V]) touch() error {
	c.sweeper.ensureRunning()
	if c.evictor == nil {
		return nil
	}
	size := c.storage.size()
	if size < c.marks.userDataElements {
		return nil
	}
	c.evictor.requestEviction()
	if size < c.marks.blockStartAt {
		return nil
	}
	if c.opts.JamPolicy == JamPolicyDrop {
		c.stats.recordDrop()
		return ErrDropped
	}
	c.evictor.waitUntilUnderBlock()
	return nil
}

func (c *Cache[K, V]) removeHolder(key K, h *holder[V], shard *mapShard[K, V]) {
	if shard.compareAndDelete(key, h) {
		h.release()
	}
}

// Get returns the value for key. If absent or expired and a Loader is
// configured, the Loader is consulted (deduplicated across concurrent
// callers for the same key) and, on success, the loaded value is stored
// before being returned.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	if c.isClosed() {
		return zero, false, ErrClosedCache
	}
	shard := c.storage.shardFor(key)
	if h, ok := shard.load(key); ok {
		now := c.clock.nowMillis()
		if !h.isInvalid(now) {
			v, ok, err := h.get(c.clock, c.codec)
			if err != nil {
				return zero, false, err
			}
			if ok {
				h.incrementUseCount()
				c.stats.recordHit()
				return v, true, nil
			}
		} else {
			c.removeHolder(key, h, shard)
		}
	}
	c.stats.recordMiss()

	if c.opts.loader == nil {
		return zero, false, nil
	}
	v, err := c.loadG.do(ctx, key, c.opts.loader)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %v", ErrLoaderError, err)
	}
	if err := c.putLocal(ctx, key, v, EventCreated, false); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// putLocal applies the writer (if fireWriter) then stores the value,
// dispatching the appropriate event.
func (c *Cache[K, V]) putLocal(ctx context.Context, key K, val V, kind EventType, fireWriter bool) error {
	if fireWriter && c.opts.writer != nil {
		if err := c.opts.writer.Write(ctx, key, val); err != nil {
			return fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	h, err := c.newCompletedHolder(val)
	if err != nil {
		return err
	}
	shard := c.storage.shardFor(key)
	old, hadOld := shard.store(key, h)
	if hadOld {
		old.release()
	}
	c.stats.recordPut()
	evtKind := kind
	if hadOld && kind == EventCreated {
		evtKind = EventUpdated
	}
	c.listeners.dispatch(Event[K, V]{Kind: evtKind, Key: key, NewValue: val, HasNewValue: true})
	return nil
}

// Put stores value under key, replacing any existing entry.
func (c *Cache[K, V]) Put(ctx context.Context, key K, val V) error {
	if c.isClosed() {
		return ErrClosedCache
	}
	if err := c.checkTypes(key, val); err != nil {
		return err
	}
	if err := c.touch(); err != nil {
		return err
	}
	return c.putLocal(ctx, key, val, EventCreated, true)
}

// PutIfAbsent stores value under key only if key is not already present,
// and reports whether it did so.
func (c *Cache[K, V]) PutIfAbsent(ctx context.Context, key K, val V) (stored bool, err error) {
	if c.isClosed() {
		return false, ErrClosedCache
	}
	if err := c.checkTypes(key, val); err != nil {
		return false, err
	}
	if err := c.touch(); err != nil {
		return false, err
	}
	shard := c.storage.shardFor(key)
	now := c.clock.nowMillis()
	if existing, ok := shard.load(key); ok && !existing.isInvalid(now) {
		return false, nil
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Write(ctx, key, val); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	h, err := c.newCompletedHolder(val)
	if err != nil {
		return false, err
	}
	actual, loaded := shard.loadOrStore(key, h)
	if loaded && !actual.isInvalid(c.clock.nowMillis()) {
		return false, nil
	}
	if loaded {
		// The stored holder was invalid (expired between our check and
		// the loadOrStore); replace it with ours.
		if !shard.compareAndSwap(key, actual, h) {
			return false, nil
		}
		actual.release()
	}
	c.stats.recordPut()
	c.listeners.dispatch(Event[K, V]{Kind: EventCreated, Key: key, NewValue: val, HasNewValue: true})
	return true, nil
}

// Replace stores value under key only if key is already present, and
// reports whether it did so.
func (c *Cache[K, V]) Replace(ctx context.Context, key K, val V) (replaced bool, err error) {
	if c.isClosed() {
		return false, ErrClosedCache
	}
	if err := c.checkTypes(key, val); err != nil {
		return false, err
	}
	shard := c.storage.shardFor(key)
	now := c.clock.nowMillis()
	old, ok := shard.load(key)
	if !ok || old.isInvalid(now) {
		return false, nil
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Write(ctx, key, val); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	h, err := c.newCompletedHolder(val)
	if err != nil {
		return false, err
	}
	if !shard.compareAndSwap(key, old, h) {
		return false, nil
	}
	old.release()
	c.stats.recordPut()
	c.listeners.dispatch(Event[K, V]{Kind: EventUpdated, Key: key, NewValue: val, HasNewValue: true})
	return true, nil
}

// ReplaceExpect stores newVal under key only if the current value equals
// oldVal, and reports whether it did so. equal is used to compare the
// current stored value to oldVal, since V is not constrained to be
// comparable.
func (c *Cache[K, V]) ReplaceExpect(ctx context.Context, key K, oldVal, newVal V, equal func(a, b V) bool) (replaced bool, err error) {
	if c.isClosed() {
		return false, ErrClosedCache
	}
	shard := c.storage.shardFor(key)
	now := c.clock.nowMillis()
	old, ok := shard.load(key)
	if !ok || old.isInvalid(now) {
		return false, nil
	}
	cur, ok, err := old.peek(c.codec)
	if err != nil {
		return false, err
	}
	if !ok || !equal(cur, oldVal) {
		return false, nil
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Write(ctx, key, newVal); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	h, err := c.newCompletedHolder(newVal)
	if err != nil {
		return false, err
	}
	if !shard.compareAndSwap(key, old, h) {
		return false, nil
	}
	old.release()
	c.stats.recordPut()
	c.listeners.dispatch(Event[K, V]{Kind: EventUpdated, Key: key, OldValue: oldVal, HasOldValue: true, NewValue: newVal, HasNewValue: true})
	return true, nil
}

// GetAndReplace stores val under key and returns the value that was
// there before, if any.
func (c *Cache[K, V]) GetAndReplace(ctx context.Context, key K, val V) (previous V, hadPrevious bool, err error) {
	if c.isClosed() {
		return previous, false, ErrClosedCache
	}
	if err := c.touch(); err != nil {
		return previous, false, err
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Write(ctx, key, val); err != nil {
			return previous, false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	h, err := c.newCompletedHolder(val)
	if err != nil {
		return previous, false, err
	}
	shard := c.storage.shardFor(key)
	old, hadOld := shard.store(key, h)
	c.stats.recordPut()
	kind := EventCreated
	if hadOld {
		now := c.clock.nowMillis()
		if !old.isInvalid(now) {
			previous, hadPrevious, err = old.peek(c.codec)
			if err != nil {
				return previous, false, err
			}
		}
		old.release()
		kind = EventUpdated
	}
	c.listeners.dispatch(Event[K, V]{Kind: kind, Key: key, OldValue: previous, HasOldValue: hadPrevious, NewValue: val, HasNewValue: true})
	return previous, hadPrevious, nil
}

// Remove deletes key, returning whether an entry was present.
func (c *Cache[K, V]) Remove(ctx context.Context, key K) (removed bool, err error) {
	if c.isClosed() {
		return false, ErrClosedCache
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	shard := c.storage.shardFor(key)
	h, had := shard.delete(key)
	if !had {
		return false, nil
	}
	h.release()
	c.stats.recordRemove()
	c.listeners.dispatch(Event[K, V]{Kind: EventRemoved, Key: key})
	return true, nil
}

// RemoveExpect deletes key only if its current value equals expect, and
// reports whether it did so.
func (c *Cache[K, V]) RemoveExpect(ctx context.Context, key K, expect V, equal func(a, b V) bool) (removed bool, err error) {
	if c.isClosed() {
		return false, ErrClosedCache
	}
	shard := c.storage.shardFor(key)
	now := c.clock.nowMillis()
	h, ok := shard.load(key)
	if !ok || h.isInvalid(now) {
		return false, nil
	}
	cur, ok, err := h.peek(c.codec)
	if err != nil {
		return false, err
	}
	if !ok || !equal(cur, expect) {
		return false, nil
	}
	if c.opts.writer != nil {
		if err := c.opts.writer.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("%w: %v", ErrWriterError, err)
		}
	}
	if !shard.compareAndDelete(key, h) {
		return false, nil
	}
	h.release()
	c.stats.recordRemove()
	c.listeners.dispatch(Event[K, V]{Kind: EventRemoved, Key: key, OldValue: expect, HasOldValue: true})
	return true, nil
}

// ContainsKey reports whether key is present and not expired.
func (c *Cache[K, V]) ContainsKey(key K) bool {
	shard := c.storage.shardFor(key)
	h, ok := shard.load(key)
	if !ok {
		return false
	}
	return !h.isInvalid(c.clock.nowMillis())
}

// Clear removes every entry without invoking the Writer or firing
// listeners, mirroring a bulk administrative reset rather than a sequence
// of individual removes.
func (c *Cache[K, V]) Clear() {
	c.storage.clear()
}

// GetAll returns every present, unexpired value among keys. Missing keys
// are simply absent from the result map; a Loader, if configured, is
// consulted for each miss (each load deduplicated the same way Get
// deduplicates single-key loads).
func (c *Cache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		v, ok, err := c.Get(ctx, k)
		if err != nil {
			return out, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// PutAll stores every entry in values. It is not atomic across keys: a
// rejected key (e.g. a Writer failure) is skipped locally and does not
// stop the rest from being processed. Any failures are joined into one
// wrapped error returned after every key has been attempted.
func (c *Cache[K, V]) PutAll(ctx context.Context, values map[K]V) error {
	var errs []error
	for k, v := range values {
		if err := c.Put(ctx, k, v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrWriterError, errors.Join(errs...))
}

// RemoveAll deletes every key in keys, ignoring keys that were already
// absent. It continues through per-key failures and returns one wrapped
// aggregate error after attempting every key.
func (c *Cache[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	var errs []error
	for _, k := range keys {
		if _, err := c.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrWriterError, errors.Join(errs...))
}

// LoadAll forces a Loader call for every key in keys, overwriting any
// value already cached under it, and requires a Loader to be configured.
func (c *Cache[K, V]) LoadAll(ctx context.Context, keys []K) error {
	if c.isClosed() {
		return ErrClosedCache
	}
	if c.opts.loader == nil {
		return fmt.Errorf("%w: LoadAll requires a Loader", ErrInvalidConfig)
	}
	for _, k := range keys {
		v, err := c.loadG.do(ctx, k, c.opts.loader)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoaderError, err)
		}
		if err := c.putLocal(ctx, k, v, EventCreated, false); err != nil {
			return err
		}
	}
	return nil
}

// AddListener registers cfg's listener. It returns ErrDuplicateListener if
// cfg.Name is already registered.
func (c *Cache[K, V]) AddListener(cfg ListenerConfig[K, V]) error {
	if c.isClosed() {
		return ErrClosedCache
	}
	return c.listeners.add(cfg)
}

// RemoveListener unregisters the listener registered under name, and
// reports whether one was found.
func (c *Cache[K, V]) RemoveListener(name string) bool {
	return c.listeners.remove(name)
}
