// Package executor holds query.Executor implementations. Mux routes requests to a
// per-entity executor, so entities served by different stores can share one engine.
package executor

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-pager/query"
)

// Mux dispatches requests by entity type.
type Mux struct {
	routes   *xsync.MapOf[string, query.Executor]
	fallback query.Executor
}

var _ query.Executor = (*Mux)(nil)

// NewMux creates a Mux. fallback, when non-nil, serves unregistered entities.
func NewMux(fallback query.Executor) *Mux {
	return &Mux{
		routes:   xsync.NewMapOf[string, query.Executor](),
		fallback: fallback,
	}
}

// Handle routes entity to exec, replacing any previous route.
func (m *Mux) Handle(entity string, exec query.Executor) {
	m.routes.Store(query.EntityTag(entity), exec)
}

// Execute implements query.Executor.
func (m *Mux) Execute(ctx context.Context, req query.Request) (query.Rows, error) {
	entity := query.EntityTag(req.Params.Entity)
	if exec, ok := m.routes.Load(entity); ok {
		return exec.Execute(ctx, req)
	}
	if m.fallback != nil {
		return m.fallback.Execute(ctx, req)
	}
	return query.Rows{}, fmt.Errorf("no executor for entity %q", entity)
}
