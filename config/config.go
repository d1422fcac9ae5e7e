// Package config loads the pager configuration from a file and PAGER_* environment
// variables.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/invalidation/pgnotify"
	"github.com/goliatone/go-repository-pager/invalidation/redisnotify"
	"github.com/goliatone/go-repository-pager/pager"
)

// EnvPrefix prefixes environment overrides: engine.page_ttl is read from
// PAGER_ENGINE_PAGE_TTL.
const EnvPrefix = "PAGER"

// Config is the complete configuration of a pager deployment.
type Config struct {
	Engine   pager.Config   `mapstructure:"engine"`
	Bus      BusConfig      `mapstructure:"bus"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// BusConfig tunes the invalidation bus.
type BusConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// MetricsConfig controls the Prometheus observer.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// NotifyConfig lists the invalidation sources to listen on. A source with an empty
// address is disabled.
type NotifyConfig struct {
	Postgres PostgresNotify `mapstructure:"postgres"`
	Redis    RedisNotify    `mapstructure:"redis"`
}

// PostgresNotify configures LISTEN/NOTIFY.
type PostgresNotify struct {
	DSN      string   `mapstructure:"dsn"`
	Channels []string `mapstructure:"channels"`
}

// RedisNotify configures redis pub/sub.
type RedisNotify struct {
	Addr     string   `mapstructure:"addr"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
	Channels []string `mapstructure:"channels"`
}

// DatabaseConfig selects the SQL database served by the table executor. An empty
// driver leaves the executor to the caller.
type DatabaseConfig struct {
	Driver        string            `mapstructure:"driver"`
	DSN           string            `mapstructure:"dsn"`
	TenantColumn  string            `mapstructure:"tenant_column"`
	SearchColumns []string          `mapstructure:"search_columns"`
	Tables        map[string]string `mapstructure:"tables"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used for keys absent from file and environment.
func Default() Config {
	return Config{
		Engine: pager.DefaultConfig(),
		Bus:    BusConfig{BufferSize: invalidation.DefaultBufferSize},
		Metrics: MetricsConfig{
			Namespace: "pager",
		},
		Notify: NotifyConfig{
			Postgres: PostgresNotify{Channels: []string{pgnotify.DefaultChannel}},
			Redis:    RedisNotify{Channels: []string{redisnotify.DefaultChannel}},
		},
		Database: DatabaseConfig{
			TenantColumn: "tenant_id",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	err := validation.Errors{
		"bus": validation.ValidateStruct(&c.Bus,
			validation.Field(&c.Bus.BufferSize, validation.Min(0)),
		),
		"metrics": validation.ValidateStruct(&c.Metrics,
			validation.Field(&c.Metrics.Namespace, validation.When(c.Metrics.Enabled, validation.Required)),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.In("sqlite3", "postgres")),
			validation.Field(&c.Database.DSN, validation.When(c.Database.Driver != "", validation.Required)),
		),
		"notify": validation.ValidateStruct(&c.Notify.Postgres,
			validation.Field(&c.Notify.Postgres.Channels, validation.When(c.Notify.Postgres.DSN != "", validation.Required)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.Required, validation.By(logLevel)),
			validation.Field(&c.Log.Format, validation.In("text", "json")),
		),
	}.Filter()
	return err
}

func logLevel(value any) error {
	s, _ := value.(string)
	_, err := logrus.ParseLevel(s)
	return err
}

// keys lists every configuration key, so that environment overrides apply even
// when the key is absent from the file.
var keys = []string{
	"engine.page_ttl",
	"engine.count_ttl",
	"engine.key_field",
	"engine.prefetch",
	"engine.available_memory_bytes",
	"engine.default_item_bytes",
	"engine.default_estimate",
	"engine.metrics_window",
	"engine.normalizer.max_page_size",
	"engine.normalizer.max_search_length",
	"engine.normalizer.default_sort_field",
	"engine.normalizer.default_sort_order",
	"engine.normalizer.allowed_sort_fields",
	"engine.normalizer.allowed_filter_fields",
	"engine.page_cache.backend",
	"engine.page_cache.capacity",
	"engine.page_cache.num_shards",
	"engine.page_cache.ttl",
	"engine.page_cache.eviction_percentage",
	"engine.page_cache.eviction_interval",
	"engine.count_cache.backend",
	"engine.count_cache.capacity",
	"engine.count_cache.num_shards",
	"engine.count_cache.ttl",
	"engine.count_cache.eviction_percentage",
	"engine.count_cache.eviction_interval",
	"bus.buffer_size",
	"metrics.enabled",
	"metrics.namespace",
	"notify.postgres.dsn",
	"notify.postgres.channels",
	"notify.redis.addr",
	"notify.redis.password",
	"notify.redis.db",
	"notify.redis.channels",
	"database.driver",
	"database.dsn",
	"database.tenant_column",
	"database.search_columns",
	"log.level",
	"log.format",
}

// New returns a viper instance reading path (YAML, JSON or TOML by extension) and
// PAGER_* environment variables. An empty path reads the environment only.
func New(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	return Read(New(path))
}

// Read decodes v over the defaults and validates the result.
func Read(v *viper.Viper) (Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Watch re-reads the configuration whenever the file behind v changes and passes
// every valid result to onChange. Invalid edits are logged and skipped.
func Watch(v *viper.Viper, logger logrus.FieldLogger, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Read(v)
		if err != nil {
			logger.WithError(err).WithField("file", e.Name).Warn("ignoring invalid config change")
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// NewLogger builds a logrus logger from c.
func NewLogger(c LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
