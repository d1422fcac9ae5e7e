package pager

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-pager/cache"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/strategy"
)

// Config holds the engine settings.
type Config struct {
	// PageTTL bounds how long a cached page may be served.
	PageTTL time.Duration `mapstructure:"page_ttl"`
	// CountTTL bounds how long a cached total count may be reused across pages.
	CountTTL time.Duration `mapstructure:"count_ttl"`
	// KeyField is the unique column breaking sort ties.
	KeyField string `mapstructure:"key_field"`
	// Prefetch warms the next Decision.PrefetchPages numbered pages after a miss.
	Prefetch bool `mapstructure:"prefetch"`

	AvailableMemoryBytes int64 `mapstructure:"available_memory_bytes"`
	DefaultItemBytes     int64 `mapstructure:"default_item_bytes"`
	DefaultEstimate      int64 `mapstructure:"default_estimate"`

	MetricsWindow int `mapstructure:"metrics_window"`

	Normalizer query.NormalizerConfig `mapstructure:"normalizer"`
	PageCache  cache.Config           `mapstructure:"page_cache"`
	CountCache cache.Config           `mapstructure:"count_cache"`
}

// DefaultConfig returns the engine defaults: five minute pages, one minute counts.
func DefaultConfig() Config {
	budget := strategy.DefaultBudget()

	pages := cache.DefaultConfig()
	counts := cache.DefaultConfig()
	counts.Capacity = 500
	counts.TTL = time.Minute

	return Config{
		PageTTL:              5 * time.Minute,
		CountTTL:             time.Minute,
		KeyField:             "id",
		AvailableMemoryBytes: budget.AvailableMemoryBytes,
		DefaultItemBytes:     budget.DefaultItemBytes,
		DefaultEstimate:      budget.DefaultEstimate,
		MetricsWindow:        100,
		Normalizer:           query.DefaultNormalizerConfig(),
		PageCache:            pages,
		CountCache:           counts,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PageTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CountTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.KeyField, validation.Required),
		validation.Field(&c.AvailableMemoryBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.DefaultItemBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.DefaultEstimate, validation.Min(int64(0))),
		validation.Field(&c.MetricsWindow, validation.Required, validation.Min(1)),
		validation.Field(&c.Normalizer),
	)
	if err != nil {
		return err
	}
	if err := c.PageCache.Validate(); err != nil {
		return err
	}
	return c.CountCache.Validate()
}

func (c Config) budget() strategy.Budget {
	return strategy.Budget{
		AvailableMemoryBytes: c.AvailableMemoryBytes,
		DefaultItemBytes:     c.DefaultItemBytes,
		DefaultEstimate:      c.DefaultEstimate,
	}
}
