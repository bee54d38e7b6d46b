package triava

import (
	"context"
	"fmt"
)

// Iterator walks a weakly consistent snapshot of the cache taken at the
// moment Iterator() was called: entries put or removed afterward are
// neither guaranteed to appear nor guaranteed to be absent. An entry that
// expires between the snapshot and the walk reaching it is simply
// skipped, the same way a concurrent Get would treat it as a miss.
type Iterator[K comparable, V any] struct {
	cache   *Cache[K, V]
	items   []kv[K, V]
	idx     int
	cur     kv[K, V]
	started bool
}

// Iterator returns a new weakly consistent iterator over the cache's
// current entries.
func (c *Cache[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{cache: c, items: c.storage.snapshot()}
}

// Next advances to the next unexpired entry and reports whether one was
// found.
func (it *Iterator[K, V]) Next() bool {
	now := it.cache.clock.nowMillis()
	for it.idx < len(it.items) {
		item := it.items[it.idx]
		it.idx++
		if item.h.isInvalid(now) {
			continue
		}
		it.cur = item
		it.started = true
		return true
	}
	return false
}

func (it *Iterator[K, V]) Key() K { return it.cur.key }

// Value returns the current entry's value, decoding it if the cache uses
// WriteModeSerialize.
func (it *Iterator[K, V]) Value() (V, error) {
	v, _, err := it.cur.h.peek(it.cache.codec)
	return v, err
}

// Remove deletes the current entry from the underlying cache, through
// the configured Writer, the same as calling Cache.Remove with its key.
func (it *Iterator[K, V]) Remove(ctx context.Context) error {
	if !it.started {
		return fmt.Errorf("triava: Iterator.Remove called before Next")
	}
	_, err := it.cache.Remove(ctx, it.cur.key)
	return err
}
