package triava

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the scalar, type-independent tuning knobs enumerated by
// the cache's external configuration surface. It is deliberately
// independent of the cache's key/value types so it can be loaded from a
// config file (YAML or JSON) the way oriys-nova's internal/config/config.go
// loads its daemon settings, before any generic Cache[K, V] is
// constructed. Type-specific settings (Loader, Writer, Codec, a CUSTOM
// EvictionPolicy, declared KeyType/ValueType) are supplied separately via
// functional options in option.go, since Go generics can't parameterize a
// struct decoded by a YAML/JSON library without fixing K and V ahead of
// time.
type Config struct {
	ID                 string        `yaml:"id" json:"id"`
	MaxIdleTime        time.Duration `yaml:"max_idle_time" json:"max_idle_time"`
	MaxCacheTime       time.Duration `yaml:"max_cache_time" json:"max_cache_time"`
	MaxCacheTimeSpread time.Duration `yaml:"max_cache_time_spread" json:"max_cache_time_spread"`
	ExpectedSize       int           `yaml:"expected_size" json:"expected_size"`
	ConcurrencyLevel   int           `yaml:"concurrency_level" json:"concurrency_level"`
	EvictionPolicy     EvictionPolicyKind `yaml:"eviction_policy" json:"eviction_policy"`
	JamPolicy          JamPolicy     `yaml:"jam_policy" json:"jam_policy"`
	StatisticsEnabled  bool          `yaml:"statistics" json:"statistics"`
	WriteMode          WriteMode     `yaml:"write_mode" json:"write_mode"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	TickInterval       time.Duration `yaml:"tick_interval" json:"tick_interval"`
}

// DefaultConfig returns the documented defaults from the configuration
// option table: 30 minute idle bound, 1 hour absolute bound, expected
// size 10000, concurrency level 14, LFU eviction, WAIT jam policy,
// statistics on, identity write mode.
func DefaultConfig() Config {
	return Config{
		MaxIdleTime:       30 * time.Minute,
		MaxCacheTime:      time.Hour,
		ExpectedSize:      10000,
		ConcurrencyLevel:  14,
		EvictionPolicy:    LFU,
		JamPolicy:         JamPolicyWait,
		StatisticsEnabled: true,
		WriteMode:         WriteModeIdentity,
	}
}

// LoadConfigYAML reads a Config from a YAML file, starting from
// DefaultConfig so unset fields keep their defaults.
func LoadConfigYAML(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("triava: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("triava: parse config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfigJSON reads a Config from a JSON file, starting from
// DefaultConfig so unset fields keep their defaults.
func LoadConfigJSON(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("triava: read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("triava: parse config json: %w", err)
	}
	return cfg, nil
}

// capacityMarks computes the bounded-cache capacity thresholds from
// ExpectedSize. userDataElements is the nominal capacity where eviction
// starts; blockStartAt is the over-full threshold where WAIT-policy
// writers block or DROP-policy writers are rejected; evictNormally is
// the target eviction batch size; evictUntilAtLeast is the lower target
// size a round brings the cache back down to.
type capacityMarks struct {
	userDataElements  int
	blockStartAt      int
	evictNormally     int
	evictUntilAtLeast int
}

func computeCapacityMarks(expectedSize int) capacityMarks {
	if expectedSize < 0 {
		expectedSize = 0
	}
	extra := int(float64(expectedSize) * 0.15)
	if extra < 0 {
		extra = 0
	}
	evictNormally := int(float64(expectedSize) * 0.10)
	return capacityMarks{
		userDataElements:  expectedSize,
		blockStartAt:      expectedSize + extra,
		evictNormally:     evictNormally,
		evictUntilAtLeast: expectedSize - evictNormally,
	}
}

func (c Config) validate(hasCustomPolicy bool) error {
	if c.ConcurrencyLevel < 1 {
		return fmt.Errorf("%w: concurrency_level must be >= 1, got %d", ErrInvalidConfig, c.ConcurrencyLevel)
	}
	if c.EvictionPolicy != NONE && c.ExpectedSize <= 0 {
		return fmt.Errorf("%w: a bounded cache needs a positive expected_size", ErrInvalidConfig)
	}
	if c.EvictionPolicy == CUSTOM && !hasCustomPolicy {
		return fmt.Errorf("%w: eviction_policy CUSTOM requires WithCustomEvictionPolicy", ErrInvalidConfig)
	}
	return nil
}
