package pager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-pager/cache"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/paginate"
	"github.com/goliatone/go-repository-pager/perfmon"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/strategy"
)

// Metrics is the rolling performance summary of one key family.
type Metrics struct {
	Family         string  `json:"family"`
	AvgQueryTimeMs float64 `json:"avg_query_time_ms"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	ErrorRate      float64 `json:"error_rate"`
	Samples        int     `json:"samples"`
}

// CacheStats describes the engine's caches.
type CacheStats struct {
	Pages     int   `json:"pages"`
	PageBytes int64 `json:"page_bytes"`
	Counts    int   `json:"counts"`
	Shapes    int   `json:"shapes"`
	Processed int64 `json:"events_processed"`
	Evicted   int64 `json:"entries_evicted"`
}

// Engine is the data-access facade: it normalizes a request, serves it from the page
// cache or through the chosen pagination strategy, and records how it went.
type Engine struct {
	cfg        Config
	normalizer *query.Normalizer
	pages      *cache.Store[query.PageResult]
	counts     *cache.Store[int64]
	registry   *strategy.Registry
	paginator  *paginate.Paginator
	bus        *invalidation.Bus
	monitor    *perfmon.Monitor
	logger     logrus.FieldLogger
	now        func() time.Time

	prefetching sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the engine's components.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPageStore replaces the page cache built from Config.PageCache.
func WithPageStore(store *cache.Store[query.PageResult]) Option {
	return func(e *Engine) {
		e.pages = store
	}
}

// WithCountStore replaces the count cache built from Config.CountCache.
func WithCountStore(store *cache.Store[int64]) Option {
	return func(e *Engine) {
		e.counts = store
	}
}

// WithMonitor replaces the performance monitor.
func WithMonitor(monitor *perfmon.Monitor) Option {
	return func(e *Engine) {
		e.monitor = monitor
	}
}

// WithBus replaces the invalidation bus. The engine registers its caches on it.
func WithBus(bus *invalidation.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithClock overrides the clock used to time requests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine serving pages from exec.
func New(exec query.Executor, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	if e.pages == nil {
		pageCfg := cfg.PageCache
		pageCfg.TTL = cfg.PageTTL
		if e.pages, err = cache.NewStore[query.PageResult](pageCfg); err != nil {
			return nil, err
		}
	}
	if e.counts == nil {
		countCfg := cfg.CountCache
		countCfg.TTL = cfg.CountTTL
		if e.counts, err = cache.NewStore[int64](countCfg); err != nil {
			return nil, err
		}
	}
	if e.monitor == nil {
		e.monitor = perfmon.New(perfmon.WithWindow(cfg.MetricsWindow))
	}
	if e.bus == nil {
		e.bus = invalidation.NewBus(invalidation.WithLogger(e.logger))
	}

	e.normalizer = query.NewNormalizer(cfg.Normalizer)
	e.registry = strategy.NewRegistry(cfg.budget())
	e.paginator = paginate.New(exec,
		paginate.WithKeyField(cfg.KeyField),
		paginate.WithCountCache(e.counts, cfg.CountTTL),
		paginate.WithLogger(e.logger),
	)

	e.bus.Register("pages", e.pages)
	e.bus.Register("counts", e.counts)

	return e, nil
}

// FetchPage serves one page. Errors are *errors.Error values of kind
// invalid_parameter or upstream_query_failure; cache faults are logged and
// bypassed, never returned.
func (e *Engine) FetchPage(ctx context.Context, raw query.RawParams) (query.PageResult, error) {
	start := e.now()

	params, keys, err := e.normalize(ctx, raw)
	if err != nil {
		return query.PageResult{}, err
	}

	decision := e.registry.Decide(keys.Shape)
	log := e.logger.WithFields(logrus.Fields{
		"key":      keys.Key,
		"family":   keys.Family,
		"strategy": decision.Kind,
	})

	result, outcome, err := cache.GetOrFetch(ctx, e.pages, keys.Key, e.cfg.PageTTL, params.Tags,
		func(ctx context.Context) (query.PageResult, error) {
			return e.paginator.Fetch(ctx, params, keys.Shape, decision)
		})

	if outcome.Bypassed() {
		log.WithError(outcome.CacheErr).Warn("page cache unavailable, serving from executor")
	}

	sample := perfmon.Sample{
		Strategy:  string(decision.Kind),
		QueryTime: e.now().Sub(start),
		CacheHit:  outcome.Hit,
		Err:       err,
	}

	if err != nil {
		e.monitor.Record(keys.Key, sample)
		log.WithError(err).Debug("page fetch failed")
		return query.PageResult{}, err
	}

	sample.Strategy = string(result.Strategy)
	sample.RowCount = len(result.Rows)
	e.monitor.Record(keys.Key, sample)

	if outcome.Hit {
		result.FromCache = true
		return result, nil
	}

	if !outcome.Stored && !outcome.Bypassed() {
		log.Debug("page dropped, invalidated while in flight")
	}

	e.observe(log, keys.Shape, decision, result)
	if e.cfg.Prefetch && decision.PrefetchPages > 0 && !isPrefetch(ctx) {
		e.prefetch(ctx, raw, params, decision, result)
	}
	return result, nil
}

// normalize folds the context's cache tags into params before the keys are
// derived, so a request depending on more entity types gets its own entry.
func (e *Engine) normalize(ctx context.Context, raw query.RawParams) (query.Params, query.Keys, error) {
	params, keys, err := e.normalizer.Normalize(raw)
	if err != nil {
		return query.Params{}, query.Keys{}, err
	}
	if extra := cacheTagsFromContext(ctx); len(extra) > 0 {
		params.Tags = mergeTags(params.Tags, extra)
		keys = e.normalizer.Keys(params)
	}
	return params, keys, nil
}

// observe feeds real totals back into the shape's strategy decision.
func (e *Engine) observe(log logrus.FieldLogger, shape string, decision strategy.Decision, result query.PageResult) {
	if result.TotalCount == nil {
		return
	}

	next := e.registry.Observe(shape, *result.TotalCount, averageRowBytes(result.Rows))
	if next.Kind != decision.Kind {
		log.WithFields(logrus.Fields{
			"from":  decision.Kind,
			"to":    next.Kind,
			"total": *result.TotalCount,
		}).Info("strategy changed for query shape")
	}
}

func averageRowBytes(rows []query.Record) int64 {
	if len(rows) == 0 {
		return 0
	}
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return 0
	}
	return int64(len(data) / len(rows))
}

type prefetchKey struct{}

func isPrefetch(ctx context.Context) bool {
	v, _ := ctx.Value(prefetchKey{}).(bool)
	return v
}

// prefetch warms the following numbered pages in the background. It only applies to
// page-numbered strategies.
func (e *Engine) prefetch(ctx context.Context, raw query.RawParams, params query.Params, decision strategy.Decision, result query.PageResult) {
	if result.Page == nil || !result.Page.HasNext || raw.Cursor != "" {
		return
	}

	bg := context.WithValue(context.WithoutCancel(ctx), prefetchKey{}, true)
	last := params.Page + decision.PrefetchPages
	if result.Page.TotalPages > 0 {
		last = min(last, result.Page.TotalPages)
	}

	for page := params.Page + 1; page <= last; page++ {
		next := raw
		next.Page = page

		e.prefetching.Add(1)
		go func() {
			defer e.prefetching.Done()
			if _, err := e.FetchPage(bg, next); err != nil {
				e.logger.WithError(err).WithField("page", page).Debug("prefetch failed")
			}
		}()
	}
}

// WaitPrefetch blocks until background prefetches finish.
func (e *Engine) WaitPrefetch() {
	e.prefetching.Wait()
}

// Invalidate evicts every cached page and count depending on entityType and returns
// how many entries were removed.
func (e *Engine) Invalidate(ctx context.Context, entityType string, kind invalidation.Kind) int {
	return e.bus.OnEvent(ctx, invalidation.Event{EntityType: entityType, Kind: kind})
}

// GetMetrics returns the rolling metrics of a family ("t=<tenant>::<entity>") or of
// the family of a page key.
func (e *Engine) GetMetrics(family string) Metrics {
	sum := e.monitor.Snapshot(family)
	return Metrics{
		Family:         sum.Family,
		AvgQueryTimeMs: sum.AverageQueryTimeMs(),
		CacheHitRate:   sum.CacheHitRate,
		ErrorRate:      sum.ErrorRate,
		Samples:        sum.Samples,
	}
}

// Families lists the key families with recorded metrics.
func (e *Engine) Families() []string {
	return e.monitor.Families()
}

// Stats returns cache occupancy and invalidation counters.
func (e *Engine) Stats() CacheStats {
	processed, evicted := e.bus.Stats()
	return CacheStats{
		Pages:     e.pages.Len(),
		PageBytes: e.pages.SizeBytes(),
		Counts:    e.counts.Len(),
		Shapes:    e.registry.Len(),
		Processed: processed,
		Evicted:   evicted,
	}
}

// Bus exposes the invalidation bus so callers can publish events or attach sources.
func (e *Engine) Bus() *invalidation.Bus {
	return e.bus
}

// Run consumes invalidation events from sources until ctx is done.
func (e *Engine) Run(ctx context.Context, sources ...invalidation.Source) error {
	return e.bus.Run(ctx, sources...)
}

// Normalize exposes the engine's request normalization, for callers that need the
// cache keys of a request. Cache tags carried by ctx are part of the keys.
func (e *Engine) Normalize(ctx context.Context, raw query.RawParams) (query.Params, query.Keys, error) {
	return e.normalize(ctx, raw)
}

// Clear drops every cached page and count.
func (e *Engine) Clear() error {
	if err := e.pages.Clear(); err != nil {
		return err
	}
	return e.counts.Clear()
}
