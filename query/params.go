package query

import (
	"math"

	"github.com/goliatone/go-repository-pager/strategy"
)

// SortOrder is the direction of the primary sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Reverse returns the opposite direction.
func (o SortOrder) Reverse() SortOrder {
	if o == Desc {
		return Asc
	}
	return Desc
}

// Viewport is the scroll state of a virtual-scroll list.
type Viewport struct {
	strategy.VirtualConfig
	ScrollTop float64 `json:"scroll_top"`
}

// Validate checks the viewport geometry and scroll offset.
func (v Viewport) Validate() error {
	if err := v.VirtualConfig.Validate(); err != nil {
		return err
	}
	if v.ScrollTop < 0 || math.IsNaN(v.ScrollTop) {
		return strategy.ErrNegativeWindow
	}
	if math.IsInf(v.ScrollTop, 1) {
		return strategy.ErrScrollOffset
	}
	return nil
}

// RawParams is a page request as received from a caller, before normalization.
type RawParams struct {
	// Tenant scopes every cache key. Required.
	Tenant string `json:"tenant"`
	// Entity is the primary entity type being listed. Required.
	Entity string `json:"entity"`
	// Related lists entity types joined into the rows, so their change events also
	// evict the cached page.
	Related []string `json:"related"`

	// Filters maps a field to a scalar or a slice of scalars (IN semantics).
	Filters map[string]any `json:"filters"`

	SortField string `json:"sort_field"`
	SortOrder string `json:"sort_order"`

	// Page is 1-based; 0 means the first page.
	Page int `json:"page"`
	// Cursor is an opaque token from a previous CursorInfo.
	Cursor string `json:"cursor"`
	// PageSize 0 lets the chosen strategy decide.
	PageSize int    `json:"page_size"`
	Search   string `json:"search"`

	// Strategy forces a pagination strategy instead of the selector's choice.
	Strategy string    `json:"strategy"`
	Viewport *Viewport `json:"viewport"`
}

// Filter is one normalized filter: Field IN Values.
type Filter struct {
	Field  string
	Values []any
}

// Params is a normalized, deterministic page request.
type Params struct {
	Tenant string
	Entity string
	// Tags holds the snake_case entity types the result depends on, sorted.
	Tags []string

	Filters   []Filter
	SortField string
	SortOrder SortOrder

	Page        int
	PageSize    int
	Cursor      *Cursor
	CursorToken string
	Search      string

	Strategy strategy.Kind
	Viewport *Viewport
}

// EffectivePageSize returns PageSize, or fallback when the caller left it unset.
func (p Params) EffectivePageSize(fallback int) int {
	if p.PageSize > 0 {
		return p.PageSize
	}
	return fallback
}

// FilterValues returns the values of the filter on field.
func (p Params) FilterValues(field string) ([]any, bool) {
	for _, f := range p.Filters {
		if f.Field == field {
			return f.Values, true
		}
	}
	return nil, false
}

// Keys are the cache identities derived from a request.
type Keys struct {
	// Key identifies one page of one query.
	Key string
	// Shape identifies the query ignoring page, cursor and viewport.
	Shape string
	// Family groups every query of a tenant over one entity type.
	Family string
}
