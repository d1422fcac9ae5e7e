package cache

import (
	"time"

	"github.com/goliatone/go-repository-pager/internal/cacheinfra"
)

// Backend kinds accepted in Config.Backend.
const (
	BackendLRU     = string(cacheinfra.BackendLRU)
	BackendSturdyc = string(cacheinfra.BackendSturdyc)
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            string        `mapstructure:"backend"`
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	TTL                time.Duration `mapstructure:"ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs a Store over the backend selected by cfg. cfg.TTL is also the
// default per-entry TTL.
func NewStore[V any](cfg Config, opts ...StoreOption[V]) (*Store[V], error) {
	backend, err := cacheinfra.New[*Entry[V]](cfg.toInternal())
	if err != nil {
		return nil, err
	}

	opts = append([]StoreOption[V]{WithDefaultTTL[V](cfg.TTL)}, opts...)
	return NewStoreWithBackend[V](backend, opts...), nil
}

func (c Config) toInternal() cacheinfra.Config {
	backend := cacheinfra.BackendKind(c.Backend)
	if backend == "" {
		backend = cacheinfra.BackendLRU
	}
	return cacheinfra.Config{
		Backend:            backend,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:            string(cfg.Backend),
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
