package query

import (
	"github.com/goliatone/go-repository-pager/strategy"
)

// PageInfo describes a numbered page (offset and infinite strategies).
type PageInfo struct {
	CurrentPage int  `json:"current_page" msgpack:"current_page"`
	PageSize    int  `json:"page_size" msgpack:"page_size"`
	TotalPages  int  `json:"total_pages" msgpack:"total_pages"`
	HasNext     bool `json:"has_next" msgpack:"has_next"`
	HasPrev     bool `json:"has_prev" msgpack:"has_prev"`

	// Accumulated and AccumulationCap are set by the infinite strategy: the number
	// of rows a client holds after this page, and the most it may hold.
	Accumulated     int `json:"accumulated,omitempty" msgpack:"accumulated,omitempty"`
	AccumulationCap int `json:"accumulation_cap,omitempty" msgpack:"accumulation_cap,omitempty"`
}

// CursorInfo describes a keyset page.
type CursorInfo struct {
	NextCursor string `json:"next_cursor,omitempty" msgpack:"next_cursor,omitempty"`
	PrevCursor string `json:"prev_cursor,omitempty" msgpack:"prev_cursor,omitempty"`
	HasNext    bool   `json:"has_next" msgpack:"has_next"`
	HasPrev    bool   `json:"has_prev" msgpack:"has_prev"`
}

// PageResult is one page of rows plus the navigation state of its strategy.
// Rows are shared with the cache; callers must not mutate them.
type PageResult struct {
	Rows       []Record         `json:"rows" msgpack:"rows"`
	TotalCount *int64           `json:"total_count" msgpack:"total_count"`
	Strategy   strategy.Kind    `json:"strategy" msgpack:"strategy"`
	Page       *PageInfo        `json:"page,omitempty" msgpack:"page,omitempty"`
	Cursor     *CursorInfo      `json:"cursor,omitempty" msgpack:"cursor,omitempty"`
	Window     *strategy.Window `json:"window,omitempty" msgpack:"window,omitempty"`
	FromCache  bool             `json:"from_cache" msgpack:"-"`
}

// HasNext reports whether another page follows, whatever the strategy.
func (r PageResult) HasNext() bool {
	switch {
	case r.Page != nil:
		return r.Page.HasNext
	case r.Cursor != nil:
		return r.Cursor.HasNext
	case r.Window != nil:
		return r.Window.LoadMore
	}
	return false
}
