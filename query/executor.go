package query

import "context"

// Seek positions a keyset query strictly after the row with sort value Value and
// tie-breaking key Key, in the request's effective ordering.
type Seek struct {
	Value any
	Key   any
}

// Request is what the pagination layer asks of a query executor. It never carries
// storage-specific syntax.
type Request struct {
	Params Params
	// KeyField is the unique column used to break sort ties.
	KeyField string

	Offset int
	// Limit caps the returned rows; 0 asks for the count only.
	Limit int

	// Reverse flips the ordering of both the sort field and the key field.
	Reverse bool
	After   *Seek

	// CountTotal asks for the number of rows matching filters and search,
	// ignoring Offset, Limit and After.
	CountTotal bool
}

// Order returns the effective direction of the request.
func (r Request) Order() SortOrder {
	order := r.Params.SortOrder
	if order == "" {
		order = Asc
	}
	if r.Reverse {
		return order.Reverse()
	}
	return order
}

// Rows is an executor response. Total is nil unless CountTotal was requested.
type Rows struct {
	Records []Record
	Total   *int64
}

// Executor runs a filtered, sorted, paginated query against a backing store.
// Tenant isolation is the executor's responsibility.
type Executor interface {
	Execute(ctx context.Context, req Request) (Rows, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (Rows, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Rows, error) {
	return f(ctx, req)
}
