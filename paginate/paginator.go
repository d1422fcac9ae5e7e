// Package paginate turns a normalized request and a strategy decision into executor
// requests and a PageResult.
//
// Four strategies are supported:
//
//   - offset:   LIMIT/OFFSET pages with a total count and page numbers
//   - cursor:   keyset pages with opaque next/prev tokens, stable under inserts
//   - infinite: offset pages without a count, capped at an accumulation limit
//   - virtual:  the row window a scrolled viewport needs
//
// Total counts are kept in an optional count cache keyed by query shape, so paging
// through a result set counts it once per TTL.
package paginate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-repository-pager/cache"
	pagererrors "github.com/goliatone/go-repository-pager/errors"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/strategy"
)

// DefaultKeyField is the unique column used to break sort ties.
const DefaultKeyField = "id"

// Paginator executes pages against a query.Executor.
type Paginator struct {
	exec     query.Executor
	keyField string
	counts   *cache.Store[int64]
	countTTL time.Duration
	logger   logrus.FieldLogger
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithKeyField sets the tie-breaking column.
func WithKeyField(field string) Option {
	return func(p *Paginator) {
		if field != "" {
			p.keyField = field
		}
	}
}

// WithCountCache caches total counts per query shape in store.
func WithCountCache(store *cache.Store[int64], ttl time.Duration) Option {
	return func(p *Paginator) {
		p.counts = store
		p.countTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Paginator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Paginator over exec.
func New(exec query.Executor, opts ...Option) *Paginator {
	p := &Paginator{
		exec:     exec,
		keyField: DefaultKeyField,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// KeyField returns the tie-breaking column.
func (p *Paginator) KeyField() string {
	return p.keyField
}

// Fetch runs one page. The strategy is decision.Kind unless params carries an
// override, in which case the override's defaults apply. shape identifies the query
// for the count cache.
func (p *Paginator) Fetch(ctx context.Context, params query.Params, shape string, decision strategy.Decision) (query.PageResult, error) {
	if params.Strategy != "" && params.Strategy != decision.Kind {
		decision = strategy.Defaults(params.Strategy)
	}

	switch decision.Kind {
	case strategy.Cursor:
		return p.cursor(ctx, params, shape, decision)
	case strategy.Infinite:
		return p.infinite(ctx, params, decision)
	case strategy.Virtual:
		return p.virtual(ctx, params, shape, decision)
	default:
		return p.offset(ctx, params, shape, decision)
	}
}

func (p *Paginator) execute(ctx context.Context, op string, req query.Request) (query.Rows, error) {
	req.KeyField = p.keyField
	rows, err := p.exec.Execute(ctx, req)
	if err != nil {
		return query.Rows{}, pagererrors.UpstreamQuery(op, err)
	}
	if req.CountTotal && rows.Total == nil {
		return query.Rows{}, pagererrors.UpstreamQuery(op, errMissingTotal)
	}
	return rows, nil
}

// cachedCount returns the count stored for shape, if any. Cache faults count as a
// miss.
func (p *Paginator) cachedCount(shape string) (int64, bool) {
	if p.counts == nil || shape == "" {
		return 0, false
	}
	total, ok, err := p.counts.Get(shape)
	if err != nil {
		p.logger.WithError(err).WithField("shape", shape).Warn("count cache unavailable")
		return 0, false
	}
	return total, ok
}

// countFence must be taken before the query whose count is later stored.
func (p *Paginator) countFence(params query.Params) cache.Fence {
	if p.counts == nil {
		return cache.Fence{}
	}
	return p.counts.Fence(params.Tags...)
}

func (p *Paginator) storeCount(params query.Params, shape string, total int64, fence cache.Fence) {
	if p.counts == nil || shape == "" {
		return
	}
	if _, err := p.counts.SetFenced(shape, total, p.countTTL, params.Tags, fence); err != nil {
		p.logger.WithError(err).WithField("shape", shape).Warn("count cache unavailable")
	}
}

// count returns the total for params, from the count cache or a count query.
func (p *Paginator) count(ctx context.Context, op string, params query.Params, shape string) (int64, error) {
	if total, ok := p.cachedCount(shape); ok {
		return total, nil
	}

	fence := p.countFence(params)
	rows, err := p.execute(ctx, op, query.Request{Params: params, CountTotal: true})
	if err != nil {
		return 0, err
	}
	p.storeCount(params, shape, *rows.Total, fence)
	return *rows.Total, nil
}

func totalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
