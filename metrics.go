package triava

import "github.com/prometheus/client_golang/prometheus"

// RegisterPrometheus exports a cache's statistics counters as Prometheus
// gauges (GaugeFunc) under the given registerer, labeled with the cache's id.
// This mirrors the counters returned by Stats(); it does not add any
// management surface beyond them. Call the returned function to
// unregister (e.g. from a deferred Close) if the cache can be recreated
// with the same id within the process lifetime.
func RegisterPrometheus[K comparable, V any](reg prometheus.Registerer, c *Cache[K, V]) (unregister func(), err error) {
	labels := prometheus.Labels{"cache": c.ID()}

	newGaugeFunc := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "triava",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, f)
	}

	collectors := []prometheus.Collector{
		newGaugeFunc("hits_total", "Cumulative cache hits.", func() float64 { return float64(c.Stats().Hits) }),
		newGaugeFunc("misses_total", "Cumulative cache misses.", func() float64 { return float64(c.Stats().Misses) }),
		newGaugeFunc("puts_total", "Cumulative successful put-family operations.", func() float64 { return float64(c.Stats().Puts) }),
		newGaugeFunc("removes_total", "Cumulative successful removes.", func() float64 { return float64(c.Stats().Removes) }),
		newGaugeFunc("drops_total", "Cumulative puts dropped under the DROP jam policy.", func() float64 { return float64(c.Stats().Drops) }),
		newGaugeFunc("evictions_total", "Cumulative entries evicted for capacity.", func() float64 { return float64(c.Stats().EvictionCount) }),
		newGaugeFunc("eviction_rounds_total", "Cumulative eviction worker rounds run.", func() float64 { return float64(c.Stats().EvictionRounds) }),
		newGaugeFunc("eviction_halts_total", "Cumulative eviction worker halts after repeated failure.", func() float64 { return float64(c.Stats().EvictionHalts) }),
		newGaugeFunc("eviction_rate", "Evictions per second, averaged over the last 60s.", func() float64 { return c.Stats().EvictionRate }),
		newGaugeFunc("hit_ratio_percent", "5-sample moving average of the hit ratio.", func() float64 { return c.Stats().HitRatioPercent }),
		newGaugeFunc("size", "Current (approximate) entry count.", func() float64 { return float64(c.Size()) }),
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return func() {
		for _, col := range collectors {
			reg.Unregister(col)
		}
	}, nil
}
