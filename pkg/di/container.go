package di

import (
	"context"
	"errors"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/config"
	"github.com/goliatone/go-repository-pager/executor/bunexec"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/invalidation/pgnotify"
	"github.com/goliatone/go-repository-pager/invalidation/redisnotify"
	"github.com/goliatone/go-repository-pager/pager"
	"github.com/goliatone/go-repository-pager/perfmon"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/repositorycache"
)

// Container wires an Engine and its collaborators from a config.Config.
// It owns the database handle and the redis client it opened, and releases them in
// Close.
type Container struct {
	config   config.Config
	logger   *logrus.Logger
	db       *bun.DB
	redis    redis.UniversalClient
	executor query.Executor
	monitor  *perfmon.Monitor
	bus      *invalidation.Bus
	engine   *pager.Engine
	sources  []invalidation.Source
}

// Option customizes a Container.
type Option func(*settings)

type settings struct {
	executor   query.Executor
	logger     *logrus.Logger
	registerer prometheus.Registerer
	sources    []invalidation.Source
}

// WithExecutor serves pages from exec instead of the configured database.
func WithExecutor(exec query.Executor) Option {
	return func(s *settings) {
		s.executor = exec
	}
}

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRegisterer registers the Prometheus collectors with reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}

// WithSources adds invalidation sources consumed by Run, next to the configured
// ones.
func WithSources(sources ...invalidation.Source) Option {
	return func(s *settings) {
		s.sources = append(s.sources, sources...)
	}
}

// NewContainer validates cfg and builds every component it describes. The executor
// comes from WithExecutor or, failing that, from the database section.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	c := &Container{config: cfg, logger: s.logger}
	if c.logger == nil {
		logger, err := config.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	if err := c.initExecutor(s.executor); err != nil {
		return nil, err
	}

	monitorOpts := []perfmon.Option{perfmon.WithWindow(cfg.Engine.MetricsWindow)}
	if cfg.Metrics.Enabled {
		observer, err := perfmon.NewPrometheusObserver(cfg.Metrics.Namespace, s.registerer)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		monitorOpts = append(monitorOpts, perfmon.WithObserver(observer))
	}
	c.monitor = perfmon.New(monitorOpts...)

	busOpts := []invalidation.Option{invalidation.WithLogger(c.logger)}
	if cfg.Bus.BufferSize > 0 {
		busOpts = append(busOpts, invalidation.WithBufferSize(cfg.Bus.BufferSize))
	}
	c.bus = invalidation.NewBus(busOpts...)

	engine, err := pager.New(c.executor, cfg.Engine,
		pager.WithLogger(c.logger),
		pager.WithMonitor(c.monitor),
		pager.WithBus(c.bus),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.engine = engine

	c.initSources()
	c.sources = append(c.sources, s.sources...)

	return c, nil
}

// NewContainerWithDefaults creates a container over exec using config.Default.
func NewContainerWithDefaults(exec query.Executor) (*Container, error) {
	return NewContainer(config.Default(), WithExecutor(exec))
}

func (c *Container) initExecutor(exec query.Executor) error {
	if exec != nil {
		c.executor = exec
		return nil
	}

	db := c.config.Database
	if db.Driver == "" {
		return errors.New("no executor: set database.driver or pass WithExecutor")
	}

	conn, err := bunexec.Open(db.Driver, db.DSN)
	if err != nil {
		return err
	}
	conn.AddQueryHook(bunexec.NewLogHook(c.logger))
	c.db = conn

	tableOpts := []bunexec.Option{bunexec.WithLogger(c.logger)}
	if db.TenantColumn != "" {
		tableOpts = append(tableOpts, bunexec.WithTenantColumn(db.TenantColumn))
	}
	if len(db.SearchColumns) > 0 {
		tableOpts = append(tableOpts, bunexec.WithSearchColumns(db.SearchColumns...))
	}
	for entity, table := range db.Tables {
		tableOpts = append(tableOpts, bunexec.WithTable(entity, table))
	}
	c.executor = bunexec.NewTableExecutor(conn, tableOpts...)
	return nil
}

func (c *Container) initSources() {
	notify := c.config.Notify

	if notify.Postgres.DSN != "" {
		c.sources = append(c.sources, pgnotify.New(notify.Postgres.DSN,
			pgnotify.WithChannels(notify.Postgres.Channels...),
			pgnotify.WithLogger(c.logger),
		))
	}

	if notify.Redis.Addr != "" {
		c.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{notify.Redis.Addr},
			Password: notify.Redis.Password,
			DB:       notify.Redis.DB,
		})
		c.sources = append(c.sources, redisnotify.New(c.redis,
			redisnotify.WithChannels(notify.Redis.Channels...),
			redisnotify.WithLogger(c.logger),
		))
	}
}

// Run consumes every invalidation source until ctx is done.
func (c *Container) Run(ctx context.Context) error {
	c.logger.WithField("sources", len(c.sources)).Info("pager invalidation started")
	return c.engine.Run(ctx, c.sources...)
}

// Close releases the database handle and redis client opened by the container.
func (c *Container) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

// Engine returns the pagination engine.
func (c *Container) Engine() *pager.Engine {
	return c.engine
}

// Bus returns the invalidation bus shared by the engine and the repositories
// created with NewInvalidatingRepository.
func (c *Container) Bus() *invalidation.Bus {
	return c.bus
}

// Monitor returns the performance monitor.
func (c *Container) Monitor() *perfmon.Monitor {
	return c.monitor
}

// Executor returns the executor serving cache misses.
func (c *Container) Executor() query.Executor {
	return c.executor
}

// DB returns the database opened from the database section, or nil when the
// executor was supplied.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Logger returns the container's logger.
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Sources returns the invalidation sources consumed by Run.
func (c *Container) Sources() []invalidation.Source {
	return c.sources
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config {
	return c.config
}

// NewInvalidatingRepository wraps base so that its writes evict the engine's cached
// pages of entityType.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewInvalidatingRepository[Initiative](container, base, "initiative")
func NewInvalidatingRepository[T any](c *Container, base repository.Repository[T], entityType string, opts ...repositorycache.Option) *repositorycache.InvalidatingRepository[T] {
	opts = append([]repositorycache.Option{repositorycache.WithLogger(c.logger)}, opts...)
	return repositorycache.New(base, entityType, c.bus, opts...)
}
