// Package triava provides a thread-safe, in-process key/value cache for
// concurrent read-heavy workloads with bounded capacity, expiration, and
// pluggable eviction.
//
// # Design
//
//   - Storage: the map is split into shards, each a plain map guarded by a
//     dedicated RWMutex. Shard count is controlled by WithConcurrencyLevel
//     and should roughly track the number of concurrent writer goroutines.
//     Keys are routed to shards with hash/maphash, so no key-type switch is
//     needed the way an interface{}-keyed cache would need one.
//
//   - Expiration: every entry carries a max idle time and a max cache time
//     (0 means "no bound on that axis"). A background sweeper periodically
//     removes expired entries; reads also treat an expired entry as a miss
//     even before the sweeper gets to it.
//
//   - Eviction: for bounded caches (EvictionPolicy other than NONE), a
//     background worker samples the live map, scores each entry with the
//     configured policy (LFU, LRU, or a custom EvictionPolicy), sorts the
//     sample, and removes the lowest-scoring entries until the cache is
//     back under its target size. Foreground writers either block (WAIT)
//     or fail fast (DROP) while the cache is over its block threshold.
//
//   - Read-through / write-through: an optional Loader is consulted on a
//     miss from Get/GetAll; an optional Writer is invoked before a mutation
//     is applied locally, so a writer failure never leaves the cache and
//     the backing store disagreeing about a key it rejected.
//
// # Basic usage
//
//	c := triava.New[string, string](
//		triava.WithExpectedSize[string, string](10_000),
//		triava.WithMaxIdleTime[string, string](30 * time.Minute),
//	)
//	defer c.Close()
//
//	c.Put(ctx, "a", "1")
//	v, ok, err := c.Get(ctx, "a")
//
// # With eviction
//
//	c := triava.New[string, []byte](
//		triava.WithExpectedSize[string, []byte](4),
//		triava.WithEvictionPolicy[string, []byte](triava.LRU),
//	)
//
// # With read-through and write-through
//
//	c := triava.New[string, string](
//		triava.WithLoader[string, string](triava.LoaderFunc[string, string](func(ctx context.Context, k string) (string, error) {
//			return strings.ToUpper(k), nil
//		})),
//		triava.WithWriter[string, string](myWriter),
//	)
package triava
