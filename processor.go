package triava

import (
	"context"
	"errors"
	"fmt"
)

// entryAction records what an EntryProcessor decided to do with the entry
// it was handed, via the MutableEntry methods it called.
type entryAction int

const (
	actionNop entryAction = iota
	actionSet
	actionRemove
	actionRemoveWriteThrough
)

// MutableEntry is the view an EntryProcessor is given of one cache entry.
// It starts as a plain snapshot (Exists/Value); calling SetValue, Remove,
// or RemoveWriteThrough records the mutation Invoke applies once the
// processor returns, so the whole read-modify-write happens without the
// caller ever seeing the entry's holder directly.
type MutableEntry[K comparable, V any] struct {
	key      K
	value    V
	exists   bool
	action   entryAction
	newValue V
}

func (e *MutableEntry[K, V]) Key() K { return e.key }

// Value returns the entry's current value and whether it was present
// (including a value just loaded through a configured Loader).
func (e *MutableEntry[K, V]) Value() (V, bool) { return e.value, e.exists }

func (e *MutableEntry[K, V]) Exists() bool { return e.exists }

// SetValue marks the entry to be stored as val, through the configured
// Writer, once the processor returns.
func (e *MutableEntry[K, V]) SetValue(val V) {
	e.action = actionSet
	e.newValue = val
	e.value = val
	e.exists = true
}

// Remove marks the entry to be deleted locally, without invoking the
// configured Writer.
func (e *MutableEntry[K, V]) Remove() {
	e.action = actionRemove
	e.exists = false
}

// RemoveWriteThrough marks the entry to be deleted, invoking the
// configured Writer first.
func (e *MutableEntry[K, V]) RemoveWriteThrough() {
	e.action = actionRemoveWriteThrough
	e.exists = false
}

// Invoke runs proc against the entry for key, applying whatever mutation
// proc recorded on its MutableEntry once it returns, and returns proc's
// result. A type parameter for the result can't live on a Cache[K, V]
// method (Go methods may not introduce additional type parameters), so
// Invoke is a package-level function taking the cache explicitly.
//
// An error from proc is wrapped exactly once in ErrProcessorError; a
// Loader failure while resolving an absent key is returned wrapped in
// ErrLoaderError before proc runs; a Writer failure triggered by SetValue/RemoveWriteThrough is wrapped in
// ErrWriterError instead, and proc's own mutation is not applied in that
// case.
func Invoke[K comparable, V any, R any](ctx context.Context, c *Cache[K, V], key K, proc func(*MutableEntry[K, V]) (R, error)) (R, error) {
	var zero R
	if c.isClosed() {
		return zero, ErrClosedCache
	}

	shard := c.storage.shardFor(key)
	now := c.clock.nowMillis()
	entry := &MutableEntry[K, V]{key: key}

	if h, ok := shard.load(key); ok && !h.isInvalid(now) {
		v, ok, err := h.peek(c.codec)
		if err != nil {
			return zero, err
		}
		if ok {
			entry.value = v
			entry.exists = true
		}
	} else if c.opts.loader != nil {
		v, err := c.loadG.do(ctx, key, c.opts.loader)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrLoaderError, err)
		}
		entry.value = v
		entry.exists = true
	}

	result, err := proc(entry)
	if err != nil {
		if errors.Is(err, ErrProcessorError) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %v", ErrProcessorError, err)
	}

	switch entry.action {
	case actionSet:
		if err := c.putLocal(ctx, key, entry.newValue, EventUpdated, true); err != nil {
			return zero, err
		}
	case actionRemove:
		if h, had := shard.delete(key); had {
			h.release()
			c.stats.recordRemove()
			c.listeners.dispatch(Event[K, V]{Kind: EventRemoved, Key: key})
		}
	case actionRemoveWriteThrough:
		if _, err := c.Remove(ctx, key); err != nil {
			return zero, err
		}
	}

	return result, nil
}

// InvokeAll runs proc once per key via Invoke, collecting each key's
// result or error independently: one key's processor error does not stop
// the others from running.
func InvokeAll[K comparable, V any, R any](ctx context.Context, c *Cache[K, V], keys []K, proc func(*MutableEntry[K, V]) (R, error)) (results map[K]R, errs map[K]error) {
	results = make(map[K]R, len(keys))
	errs = make(map[K]error)
	for _, key := range keys {
		r, err := Invoke(ctx, c, key, proc)
		if err != nil {
			errs[key] = err
			continue
		}
		results[key] = r
	}
	return results, errs
}
