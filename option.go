package triava

import (
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Cache[K, V] being constructed by New. Grounded on
// robteix-cache's option.go Option/optionFunc functional-options pattern,
// generalized to the richer configuration surface this cache exposes.
type Option[K comparable, V any] interface {
	apply(*options[K, V])
}

type optionFunc[K comparable, V any] func(*options[K, V])

func (f optionFunc[K, V]) apply(o *options[K, V]) { f(o) }

// options is the fully assembled, type-specific configuration for one
// Cache[K, V], combining the type-independent Config with everything that
// needs K/V: the loader, writer, codec, custom eviction policy, and
// declared key/value types.
type options[K comparable, V any] struct {
	Config

	loader       Loader[K, V]
	writer       Writer[K, V]
	codec        Codec[V]
	customPolicy EvictionPolicy[K]
	keyType      reflect.Type
	valueType    reflect.Type
	prometheus   prometheus.Registerer
}

func defaultOptions[K comparable, V any]() options[K, V] {
	return options[K, V]{Config: DefaultConfig()}
}

// WithConfig seeds the cache's scalar tuning knobs from a Config loaded
// via LoadConfigYAML/LoadConfigJSON or built by hand, overriding
// DefaultConfig. Type-specific options (loader, writer, ...) are still
// supplied via their own With* option.
func WithConfig[K comparable, V any](cfg Config) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.Config = cfg })
}

// WithID sets a human-readable cache name. If unset, New generates one.
func WithID[K comparable, V any](id string) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.ID = id })
}

// WithMaxIdleTime sets how long an entry may go unread before it expires.
// Zero means entries never expire from idleness.
func WithMaxIdleTime[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.MaxIdleTime = d })
}

// WithMaxCacheTime sets the absolute lifetime of an entry from insertion.
// Zero means entries never expire from age.
func WithMaxCacheTime[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.MaxCacheTime = d })
}

// WithMaxCacheTimeSpread adds a uniform-random extra lifetime in
// [0, spread] to each entry's MaxCacheTime, to avoid synchronized mass
// expiration of entries inserted together.
func WithMaxCacheTimeSpread[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.MaxCacheTimeSpread = d })
}

// WithExpectedSize sets the target user capacity, which also sizes the
// storage map and (for bounded caches) the eviction thresholds.
func WithExpectedSize[K comparable, V any](n int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.ExpectedSize = n })
}

// WithConcurrencyLevel sets the expected number of concurrent writer
// goroutines, which determines the storage map's shard count.
func WithConcurrencyLevel[K comparable, V any](n int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.ConcurrencyLevel = n })
}

// WithEvictionPolicy selects a built-in eviction strategy, or NONE for an
// unbounded cache. Use WithCustomEvictionPolicy for CUSTOM.
func WithEvictionPolicy[K comparable, V any](kind EvictionPolicyKind) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.EvictionPolicy = kind })
}

// WithCustomEvictionPolicy installs a user-provided EvictionPolicy and
// implies EvictionPolicy = CUSTOM.
func WithCustomEvictionPolicy[K comparable, V any](p EvictionPolicy[K]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.customPolicy = p
		o.EvictionPolicy = CUSTOM
	})
}

// WithJamPolicy selects how Put-family calls behave once the cache is
// over its block threshold.
func WithJamPolicy[K comparable, V any](p JamPolicy) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.JamPolicy = p })
}

// WithStatistics enables or disables the statistics recorder. Disabling
// installs a no-op recorder and discards any previously accumulated
// counters.
func WithStatistics[K comparable, V any](enabled bool) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.StatisticsEnabled = enabled })
}

// WithWriteMode selects identity (store by reference) or serialize (store
// by value, via Codec) semantics.
func WithWriteMode[K comparable, V any](m WriteMode) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.WriteMode = m })
}

// WithCodec installs the Codec used under WriteModeSerialize. Required if
// WriteMode is WriteModeSerialize; ignored otherwise.
func WithCodec[K comparable, V any](c Codec[V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.codec = c })
}

// WithLoader installs a read-through Loader, consulted on a miss from
// Get, GetAll, LoadAll, or an EntryProcessor invoked against an absent
// key.
func WithLoader[K comparable, V any](l Loader[K, V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.loader = l })
}

// WithWriter installs a write-through Writer, invoked before a mutation
// is applied locally.
func WithWriter[K comparable, V any](w Writer[K, V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.writer = w })
}

// WithKeyType declares the expected key type for a runtime check on Put.
// The zero value (unset) disables the check.
func WithKeyType[K comparable, V any](t reflect.Type) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.keyType = t })
}

// WithValueType declares the expected value type for a runtime check on
// Put. The zero value (unset) disables the check.
func WithValueType[K comparable, V any](t reflect.Type) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.valueType = t })
}

// WithTickInterval overrides the coarse clock's resampling interval
// (default 10ms).
func WithTickInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.TickInterval = d })
}

// WithCleanupInterval overrides the expiration sweeper's wake interval.
// If unset, it defaults to one tenth of the configured max idle time, or
// 30s if idle expiration is disabled.
func WithCleanupInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.CleanupInterval = d })
}

// WithPrometheus registers the cache's statistics as Prometheus gauges
// under reg as soon as New returns, and unregisters them on Close. This
// is a read-only second view of the same counters returned by Stats; it
// does not add any management surface beyond them.
func WithPrometheus[K comparable, V any](reg prometheus.Registerer) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) { o.prometheus = reg })
}
