// Package bunexec runs pager queries against SQL databases through bun.
//
// TableExecutor reads rows straight from a table into query.Records.
// RepositoryExecutor goes through a go-repository-bun repository, passing the
// request as a single SelectCriteria, for models that already have one.
//
// Both translate a query.Request the same way:
//
//   - tenant:  "<tenant column> = ?" when a tenant column is configured
//   - filters: "<field> IN (?)" per filter
//   - search:  LOWER(<column>) LIKE '%term%' over the search columns, OR'ed
//   - seek:    a keyset predicate on (sort field, key field), strictly after the cursor row
//   - order:   sort field then key field, both in the effective direction
package bunexec

import (
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/query"
)

const likeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

type config struct {
	tenantColumn  string
	searchColumns []string
	tables        map[string]string
	logger        logrus.FieldLogger
}

// Option configures an executor.
type Option func(*config)

// WithTenantColumn restricts every query to rows whose column equals the request
// tenant.
func WithTenantColumn(column string) Option {
	return func(c *config) {
		c.tenantColumn = column
	}
}

// WithSearchColumns lists the columns free-text search matches against.
func WithSearchColumns(columns ...string) Option {
	return func(c *config) {
		c.searchColumns = columns
	}
}

// WithTable maps an entity type to a table name. Unmapped entities use the plural
// snake_case form of the entity type, the way bun names model tables.
func WithTable(entity, table string) Option {
	return func(c *config) {
		c.tables[query.EntityTag(entity)] = table
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		tables: make(map[string]string),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) table(entity string) string {
	tag := query.EntityTag(entity)
	if t, ok := c.tables[tag]; ok {
		return t
	}
	return inflection.Plural(tag)
}

// where applies the tenant, filter and search predicates of p.
func (c config) where(q *bun.SelectQuery, p query.Params) *bun.SelectQuery {
	if c.tenantColumn != "" {
		q = q.Where("? = ?", bun.Ident(c.tenantColumn), p.Tenant)
	}

	for _, f := range p.Filters {
		q = q.Where("? IN (?)", bun.Ident(f.Field), bun.In(f.Values))
	}

	if p.Search != "" && len(c.searchColumns) > 0 {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(p.Search)) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, column := range c.searchColumns {
				q = q.WhereOr("LOWER(?) LIKE ? ESCAPE ?", bun.Ident(column), pattern, likeEscape)
			}
			return q
		})
	}

	return q
}

// page applies the keyset seek, ordering and limits of req.
func page(q *bun.SelectQuery, req query.Request) *bun.SelectQuery {
	q = seek(q, req)
	q = order(q, req)
	if req.Limit > 0 {
		q = q.Limit(req.Limit)
	}
	if req.Offset > 0 {
		q = q.Offset(req.Offset)
	}
	return q
}

func seek(q *bun.SelectQuery, req query.Request) *bun.SelectQuery {
	if req.After == nil {
		return q
	}

	op := ">"
	if req.Order() == query.Desc {
		op = "<"
	}

	sortField := bun.Ident(req.Params.SortField)
	if req.Params.SortField == req.KeyField {
		return q.Where("? "+op+" ?", sortField, req.After.Key)
	}

	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("? "+op+" ?", sortField, req.After.Value).
			WhereOr("? = ? AND ? "+op+" ?", sortField, req.After.Value, bun.Ident(req.KeyField), req.After.Key)
	})
}

func order(q *bun.SelectQuery, req query.Request) *bun.SelectQuery {
	dir := "ASC"
	if req.Order() == query.Desc {
		dir = "DESC"
	}

	q = q.OrderExpr("? "+dir, bun.Ident(req.Params.SortField))
	if req.KeyField != "" && req.KeyField != req.Params.SortField {
		q = q.OrderExpr("? "+dir, bun.Ident(req.KeyField))
	}
	return q
}

// toRecord converts a scanned row. Drivers may hand back text as []byte.
func toRecord(row map[string]any) query.Record {
	rec := make(query.Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		rec[k] = query.Widen(v)
	}
	return rec
}
