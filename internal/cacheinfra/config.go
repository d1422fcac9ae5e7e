package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// BackendKind selects the storage engine behind a cache store.
type BackendKind string

const (
	// BackendLRU is a strict least-recently-used map (hashicorp/golang-lru).
	BackendLRU BackendKind = "lru"
	// BackendSturdyc is a sharded map that evicts a percentage of the oldest
	// entries of a full shard at once (viccon/sturdyc).
	BackendSturdyc BackendKind = "sturdyc"
)

// Config holds the configuration for the cache backends.
type Config struct {
	// Backend selects the storage engine. Default: lru
	Backend BackendKind

	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards. Ignored by the lru backend.
	// Must be greater than 0. Default: 16
	NumShards int

	// TTL is the upper bound on how long the backend keeps an entry. Stores apply
	// their own per-entry TTL on top of it.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of a full sturdyc shard is
	// evicted at once. Must be between 1-100. Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendLRU,
		Capacity:           1000,
		NumShards:          16,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL and EvictionPercentage are passed directly to sturdyc.New.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLRU, BackendSturdyc:
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of lru, sturdyc"}
	}

	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.Backend == BackendSturdyc {
		if c.NumShards <= 0 {
			return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
		}
		if c.NumShards > c.Capacity {
			return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
		}
		if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
			return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
		}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Container is the method set shared by every backend.
type Container[V any] interface {
	Get(key string) (V, bool, error)
	Peek(key string) (V, bool, error)
	Set(key string, value V) error
	Delete(key string) error
	Keys() []string
	Len() int
	Clear() error
}

// New builds the backend selected by cfg.
func New[V any](cfg Config) (Container[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendSturdyc {
		b, err := NewSturdycBackend[V](cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	b, err := NewLRUBackend[V](cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}
