package bunexec

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/query"
)

// TableExecutor runs requests directly against tables, scanning rows into maps.
type TableExecutor struct {
	db  bun.IDB
	cfg config
}

var _ query.Executor = (*TableExecutor)(nil)

// NewTableExecutor creates a TableExecutor over db, which may be a *bun.DB or a
// bun.Tx.
func NewTableExecutor(db bun.IDB, opts ...Option) *TableExecutor {
	return &TableExecutor{db: db, cfg: newConfig(opts)}
}

// Table returns the table entity is read from.
func (e *TableExecutor) Table(entity string) string {
	return e.cfg.table(entity)
}

// Execute implements query.Executor.
func (e *TableExecutor) Execute(ctx context.Context, req query.Request) (query.Rows, error) {
	table := e.cfg.table(req.Params.Entity)
	out := query.Rows{Records: []query.Record{}}

	if req.CountTotal {
		n, err := e.cfg.where(e.db.NewSelect().Table(table), req.Params).Count(ctx)
		if err != nil {
			return query.Rows{}, fmt.Errorf("count %s: %w", table, err)
		}
		total := int64(n)
		out.Total = &total
	}

	if req.Limit == 0 {
		return out, nil
	}

	q := e.db.NewSelect().Table(table).ColumnExpr("*")
	q = page(e.cfg.where(q, req.Params), req)

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return query.Rows{}, fmt.Errorf("select %s: %w", table, err)
	}

	out.Records = make([]query.Record, len(rows))
	for i, row := range rows {
		out.Records[i] = toRecord(row)
	}

	e.cfg.logger.WithFields(logrus.Fields{
		"table":  table,
		"rows":   len(rows),
		"offset": req.Offset,
		"seek":   req.After != nil,
	}).Debug("table page executed")

	return out, nil
}
