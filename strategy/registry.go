package strategy

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Budget is the memory model decisions are made against.
type Budget struct {
	AvailableMemoryBytes int64
	DefaultItemBytes     int64
	DefaultEstimate      int64
}

// DefaultBudget assumes 64MiB for cached rows, 1KiB rows and 1000 rows per query
// until a real count is observed.
func DefaultBudget() Budget {
	return Budget{
		AvailableMemoryBytes: 64 << 20,
		DefaultItemBytes:     1024,
		DefaultEstimate:      1000,
	}
}

type shapeState struct {
	decision  Decision
	estimate  int64
	itemBytes int64
}

// Registry remembers one Decision per query shape (filters + sort, no page or
// cursor). The kind changes only when a new estimate selects a different one. The
// page size is fixed by the shape's first decision, so pages numbered under one
// kind line up with pages served after a change.
type Registry struct {
	budget Budget
	shapes *xsync.MapOf[string, shapeState]
}

// NewRegistry creates a Registry using budget.
func NewRegistry(budget Budget) *Registry {
	if budget.AvailableMemoryBytes <= 0 {
		budget.AvailableMemoryBytes = DefaultBudget().AvailableMemoryBytes
	}
	if budget.DefaultItemBytes <= 0 {
		budget.DefaultItemBytes = DefaultBudget().DefaultItemBytes
	}
	if budget.DefaultEstimate < 0 {
		budget.DefaultEstimate = 0
	}
	return &Registry{
		budget: budget,
		shapes: xsync.NewMapOf[string, shapeState](),
	}
}

// Decide returns the decision for shape. Unknown shapes are decided from the
// default estimate.
func (r *Registry) Decide(shape string) Decision {
	state, _ := r.shapes.LoadOrCompute(shape, func() shapeState {
		return r.decide(r.budget.DefaultEstimate, r.budget.DefaultItemBytes)
	})
	return state.decision
}

// Observe records a real row count and average row size for shape. The kind is
// recomputed only when the new numbers cross a strategy threshold; MaxCacheSize
// always follows the latest count.
// A non-positive itemBytes keeps the last known row size.
func (r *Registry) Observe(shape string, total, itemBytes int64) Decision {
	state, _ := r.shapes.Compute(shape, func(old shapeState, loaded bool) (shapeState, bool) {
		if itemBytes <= 0 {
			itemBytes = old.itemBytes
			if !loaded || itemBytes <= 0 {
				itemBytes = r.budget.DefaultItemBytes
			}
		}

		next := r.decide(total, itemBytes)
		if !loaded {
			return next, false
		}
		if next.decision.Kind == old.decision.Kind {
			old.decision.MaxCacheSize = next.decision.MaxCacheSize
			old.estimate = total
			old.itemBytes = itemBytes
			return old, false
		}
		next.decision.PageSize = old.decision.PageSize
		return next, false
	})
	return state.decision
}

// Estimate returns the last known row count for shape.
func (r *Registry) Estimate(shape string) (int64, bool) {
	state, ok := r.shapes.Load(shape)
	if !ok {
		return 0, false
	}
	return state.estimate, true
}

// Forget drops the remembered decision for shape.
func (r *Registry) Forget(shape string) {
	r.shapes.Delete(shape)
}

// Len returns the number of remembered shapes.
func (r *Registry) Len() int {
	return r.shapes.Size()
}

func (r *Registry) decide(estimate, itemBytes int64) shapeState {
	return shapeState{
		decision:  Choose(estimate, itemBytes, r.budget.AvailableMemoryBytes),
		estimate:  estimate,
		itemBytes: itemBytes,
	}
}
