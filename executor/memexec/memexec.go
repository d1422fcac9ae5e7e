// Package memexec is an in-memory query.Executor. It backs tests and the demo
// binary and serves as the reference for the executor contract: filters are IN
// lists, search is a case-insensitive substring match, ordering is
// (sort field, key field) and keyset seeks are strictly after the cursor row.
package memexec

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-repository-pager/query"
)

// Executor holds rows per entity type.
type Executor struct {
	mu           sync.RWMutex
	tables       map[string][]query.Record
	tenantField  string
	searchFields []string

	calls    []query.Request
	failNext error
}

// Option configures an Executor.
type Option func(*Executor)

// WithTenantField restricts every query to rows whose field matches the request
// tenant.
func WithTenantField(field string) Option {
	return func(e *Executor) {
		e.tenantField = field
	}
}

// WithSearchFields lists the fields free-text search looks at.
func WithSearchFields(fields ...string) Option {
	return func(e *Executor) {
		e.searchFields = fields
	}
}

// New creates an empty Executor.
func New(opts ...Option) *Executor {
	e := &Executor{tables: make(map[string][]query.Record)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the rows of entity. entity is canonicalized like request entities.
func (e *Executor) Load(entity string, rows []query.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[query.EntityTag(entity)] = cloneRows(rows)
}

// Upsert inserts row or replaces the row with the same keyField value.
func (e *Executor) Upsert(entity, keyField string, row query.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table := query.EntityTag(entity)
	rows := e.tables[table]
	key := row.Get(keyField)
	for i, existing := range rows {
		if query.Compare(existing.Get(keyField), key) == 0 {
			rows[i] = cloneRow(row)
			return
		}
	}
	e.tables[table] = append(rows, cloneRow(row))
}

// Remove deletes the row whose keyField equals key and reports whether it existed.
func (e *Executor) Remove(entity, keyField string, key any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	table := query.EntityTag(entity)
	rows := e.tables[table]
	for i, existing := range rows {
		if query.Compare(existing.Get(keyField), key) == 0 {
			e.tables[table] = slices.Delete(rows, i, i+1)
			return true
		}
	}
	return false
}

// FailNext makes the next Execute call return err.
func (e *Executor) FailNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// Calls returns every request received so far.
func (e *Executor) Calls() []query.Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]query.Request(nil), e.calls...)
}

// ResetCalls clears the recorded requests.
func (e *Executor) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// Execute implements query.Executor.
func (e *Executor) Execute(ctx context.Context, req query.Request) (query.Rows, error) {
	if err := ctx.Err(); err != nil {
		return query.Rows{}, err
	}

	e.mu.Lock()
	e.calls = append(e.calls, req)
	if err := e.failNext; err != nil {
		e.failNext = nil
		e.mu.Unlock()
		return query.Rows{}, err
	}
	rows, ok := e.tables[req.Params.Entity]
	matched := make([]query.Record, 0, len(rows))
	for _, row := range rows {
		if e.matches(req.Params, row) {
			matched = append(matched, row)
		}
	}
	e.mu.Unlock()

	if !ok {
		return query.Rows{}, fmt.Errorf("memexec: unknown entity %q", req.Params.Entity)
	}

	var out query.Rows
	if req.CountTotal {
		total := int64(len(matched))
		out.Total = &total
	}
	if req.Limit <= 0 {
		return out, nil
	}

	keyField := req.KeyField
	if keyField == "" {
		keyField = "id"
	}
	sortField := req.Params.SortField
	desc := req.Order() == query.Desc

	cmp := func(a, b query.Record) int {
		c := query.Compare(a.Get(sortField), b.Get(sortField))
		if c == 0 {
			c = query.Compare(a.Get(keyField), b.Get(keyField))
		}
		if desc {
			return -c
		}
		return c
	}
	slices.SortStableFunc(matched, cmp)

	if s := req.After; s != nil {
		pivot := query.Record{sortField: s.Value, keyField: s.Key}
		idx, _ := slices.BinarySearchFunc(matched, pivot, cmp)
		for idx < len(matched) && cmp(matched[idx], pivot) <= 0 {
			idx++
		}
		matched = matched[idx:]
	}

	start := min(max(req.Offset, 0), len(matched))
	end := min(start+req.Limit, len(matched))
	out.Records = cloneRows(matched[start:end])
	return out, nil
}

func (e *Executor) matches(params query.Params, row query.Record) bool {
	if e.tenantField != "" && query.Compare(row.Get(e.tenantField), params.Tenant) != 0 {
		return false
	}

	for _, f := range params.Filters {
		value := row.Get(f.Field)
		if !slices.ContainsFunc(f.Values, func(v any) bool { return query.Compare(v, value) == 0 }) {
			return false
		}
	}

	if params.Search == "" {
		return true
	}
	needle := strings.ToLower(params.Search)
	for _, field := range e.searchFields {
		if s, ok := row.Get(field).(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func cloneRows(rows []query.Record) []query.Record {
	out := make([]query.Record, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}

func cloneRow(row query.Record) query.Record {
	out := make(query.Record, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
