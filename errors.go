package triava

import "errors"

// Sentinel errors for the error kinds enumerated by this library. Wrap
// these with fmt.Errorf("...: %w", ...) at the point an operation fails so
// callers can still errors.Is/errors.As against the kind.
var (
	// ErrNullArgument is returned when a nil/zero key or value is passed
	// where one is not permitted.
	ErrNullArgument = errors.New("triava: null argument")

	// ErrClosedCache is returned by any error-returning operation attempted
	// after Close. ContainsKey, Clear, RemoveListener and Iterator have no
	// error result and do not check for a closed cache.
	ErrClosedCache = errors.New("triava: cache is closed")

	// ErrLoaderError wraps an error returned by a read-through Loader. A
	// Loader panic is not recovered.
	ErrLoaderError = errors.New("triava: loader error")

	// ErrWriterError wraps an error returned by a write-through Writer. For
	// batch writes it wraps the aggregate batch failure. A Writer panic is
	// not recovered.
	ErrWriterError = errors.New("triava: writer error")

	// ErrProcessorError wraps an error returned by an EntryProcessor; a
	// processor panic is not recovered.
	// An EntryProcessor that itself returns an error already wrapping
	// ErrProcessorError is propagated unchanged, never double-wrapped.
	ErrProcessorError = errors.New("triava: entry processor error")

	// ErrSerializationError is returned when encoding/decoding a value
	// fails under WriteModeSerialize.
	ErrSerializationError = errors.New("triava: serialization error")

	// ErrInvalidConfig reports an inconsistent configuration. New panics
	// with an error wrapping it (e.g. an eviction policy other than NONE
	// with a non-positive expected size, a CUSTOM policy with no
	// implementation, concurrency level < 1). It is also returned by a
	// Put, PutIfAbsent or Replace whose key or value does not match a
	// declared type, and by LoadAll when no Loader is configured.
	ErrInvalidConfig = errors.New("triava: invalid configuration")

	// ErrDuplicateListener is returned by AddListener when the same
	// listener configuration is registered twice.
	ErrDuplicateListener = errors.New("triava: duplicate listener registration")

	// ErrDropped is returned by Put-family operations under JamPolicyDrop
	// when the cache is over its block threshold. It is not one of the
	// formal error kinds above (the original spec this library follows
	// has the caller observe "not stored" rather than an exception for
	// this case) but Go idiom returns it as an error rather than a bool.
	ErrDropped = errors.New("triava: put dropped, cache is over capacity")
)
