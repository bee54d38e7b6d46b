package triava

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Loader is consulted on a read-through miss from Get, GetAll, LoadAll, or
// an EntryProcessor invoked against an absent key. A Loader error is
// surfaced to the caller wrapped in ErrLoaderError.
type Loader[K comparable, V any] interface {
	Load(ctx context.Context, key K) (V, error)
}

// LoaderFunc adapts a plain function to a Loader.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

func (f LoaderFunc[K, V]) Load(ctx context.Context, key K) (V, error) { return f(ctx, key) }

// Writer is invoked before a mutation (Put, Remove, and their batch forms)
// is applied to the local map. If it returns an error, the local mutation
// is not applied and the caller observes the error wrapped in
// ErrWriterError.
type Writer[K comparable, V any] interface {
	Write(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
}

// WriterFuncs adapts plain functions to a Writer.
type WriterFuncs[K comparable, V any] struct {
	WriteFunc  func(ctx context.Context, key K, value V) error
	DeleteFunc func(ctx context.Context, key K) error
}

func (w WriterFuncs[K, V]) Write(ctx context.Context, key K, value V) error {
	if w.WriteFunc == nil {
		return nil
	}
	return w.WriteFunc(ctx, key, value)
}

func (w WriterFuncs[K, V]) Delete(ctx context.Context, key K) error {
	if w.DeleteFunc == nil {
		return nil
	}
	return w.DeleteFunc(ctx, key)
}

// loadGroup deduplicates concurrent read-through loads for the same key
// into a single in-flight Loader.Load call, so a thundering herd of
// readers missing on the same cold key only ever costs one loader call
// (spec.md's "on success put the loaded value and record miss (single
// miss)"). Grounded on oriys-nova's internal/pool/pool.go use of the same
// golang.org/x/sync/singleflight package to deduplicate concurrent VM
// cold starts for one function key.
type loadGroup[K comparable, V any] struct {
	g singleflight.Group
}

func (lg *loadGroup[K, V]) do(ctx context.Context, key K, loader Loader[K, V]) (V, error) {
	// singleflight keys on a string; comparable K is rendered via fmt,
	// which is sufficient for dedup purposes (collisions only cost an
	// extra loader call, never correctness: the shared result carries the
	// typed key it was loaded for, and a caller whose key differs loads
	// its own key directly).
	sfKey := fmt.Sprintf("%v", key)
	r, err, _ := lg.g.Do(sfKey, func() (any, error) {
		v, err := loader.Load(ctx, key)
		return struct {
			key K
			val V
		}{key, v}, err
	})
	res, ok := r.(struct {
		key K
		val V
	})
	if !ok || res.key != key {
		// Another key with the same rendering owns this call.
		return loader.Load(ctx, key)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return res.val, nil
}
