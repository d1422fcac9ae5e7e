package paginate

import (
	"context"
	"errors"
	"math"
	"slices"

	pagererrors "github.com/goliatone/go-repository-pager/errors"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/strategy"
)

var errMissingTotal = errors.New("executor did not return a total count")

func (p *Paginator) offset(ctx context.Context, params query.Params, shape string, d strategy.Decision) (query.PageResult, error) {
	const op = "paginate.offset"

	size := params.EffectivePageSize(d.PageSize)
	page := max(params.Page, 1)
	offset := pageOffset(page, size)

	result := query.PageResult{Strategy: d.Kind}

	total, known := p.cachedCount(shape)
	if known && int64(offset) >= total {
		// the cached count already proves the page is out of range
		result.Rows = []query.Record{}
		result.TotalCount = &total
		result.Page = offsetInfo(page, size, total)
		return result, nil
	}

	fence := p.countFence(params)
	rows, err := p.execute(ctx, op, query.Request{
		Params:     params,
		Offset:     offset,
		Limit:      size,
		CountTotal: !known,
	})
	if err != nil {
		return query.PageResult{}, err
	}
	if !known {
		total = *rows.Total
		p.storeCount(params, shape, total, fence)
	}

	result.Rows = nonNil(rows.Records)
	result.TotalCount = &total
	result.Page = offsetInfo(page, size, total)
	return result, nil
}

// pageOffset returns the index of the first row of page, saturating at math.MaxInt
// so a huge page number reads past the end instead of wrapping.
func pageOffset(page, size int) int {
	if size > 0 && page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}

func offsetInfo(page, size int, total int64) *query.PageInfo {
	pages := totalPages(total, size)
	return &query.PageInfo{
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  pages,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}
}

func (p *Paginator) cursor(ctx context.Context, params query.Params, shape string, d strategy.Decision) (query.PageResult, error) {
	const op = "paginate.cursor"

	size := params.EffectivePageSize(d.PageSize)
	req := query.Request{Params: params, Limit: size + 1}

	backward := false
	if c := params.Cursor; c != nil {
		req.After = &query.Seek{Value: c.Value, Key: c.Key}
		backward = c.Dir == query.Before
		req.Reverse = backward
	}

	rows, err := p.execute(ctx, op, req)
	if err != nil {
		return query.PageResult{}, err
	}

	records := rows.Records
	more := len(records) > size
	if more {
		records = records[:size]
	}
	if backward {
		records = slices.Clone(records)
		slices.Reverse(records)
	}

	info := &query.CursorInfo{}
	if backward {
		info.HasPrev = more
		info.HasNext = len(records) > 0
	} else {
		info.HasNext = more
		info.HasPrev = params.Cursor != nil && len(records) > 0
	}

	if len(records) > 0 {
		if info.HasNext {
			next, err := query.EncodeCursor(query.CursorFor(params, p.keyField, records[len(records)-1], query.After))
			if err != nil {
				return query.PageResult{}, pagererrors.UpstreamQuery(op, err)
			}
			info.NextCursor = next
		}
		if info.HasPrev {
			prev, err := query.EncodeCursor(query.CursorFor(params, p.keyField, records[0], query.Before))
			if err != nil {
				return query.PageResult{}, pagererrors.UpstreamQuery(op, err)
			}
			info.PrevCursor = prev
		}
	}

	result := query.PageResult{
		Rows:     nonNil(records),
		Strategy: d.Kind,
		Cursor:   info,
	}
	if total, ok := p.cachedCount(shape); ok {
		result.TotalCount = &total
	}
	return result, nil
}

func (p *Paginator) infinite(ctx context.Context, params query.Params, d strategy.Decision) (query.PageResult, error) {
	const op = "paginate.infinite"

	size := params.EffectivePageSize(d.PageSize)
	page := max(params.Page, 1)
	offset := pageOffset(page, size)

	limit := d.MaxCacheSize
	if limit <= 0 {
		limit = strategy.InfiniteAccumulated
	}

	info := &query.PageInfo{
		CurrentPage:     page,
		PageSize:        size,
		HasPrev:         page > 1,
		AccumulationCap: int(limit),
	}
	result := query.PageResult{Strategy: d.Kind, Page: info}

	if int64(offset) >= limit {
		info.Accumulated = int(limit)
		result.Rows = []query.Record{}
		return result, nil
	}

	// one row of lookahead tells whether the list continues
	rows, err := p.execute(ctx, op, query.Request{
		Params: params,
		Offset: offset,
		Limit:  size + 1,
	})
	if err != nil {
		return query.PageResult{}, err
	}

	records := rows.Records
	more := len(records) > size
	if more {
		records = records[:size]
	}

	info.Accumulated = offset + len(records)
	info.HasNext = more && int64(offset)+int64(size) < limit
	result.Rows = nonNil(records)
	return result, nil
}

func (p *Paginator) virtual(ctx context.Context, params query.Params, shape string, d strategy.Decision) (query.PageResult, error) {
	const op = "paginate.virtual"

	vp := params.Viewport
	if vp == nil {
		// without a viewport the window degrades to fixed pages of the window size
		res, err := p.offset(ctx, params, shape, d)
		if err != nil {
			return query.PageResult{}, err
		}
		res.Strategy = strategy.Virtual
		return res, nil
	}

	total, err := p.count(ctx, op, params, shape)
	if err != nil {
		return query.PageResult{}, err
	}

	window, err := strategy.CalculateVirtualScroll(vp.VirtualConfig, vp.ScrollTop, int(total))
	if err != nil {
		return query.PageResult{}, pagererrors.InvalidParameter(op, "viewport", err)
	}

	result := query.PageResult{
		Strategy:   strategy.Virtual,
		TotalCount: &total,
		Window:     &window,
		Rows:       []query.Record{},
	}
	if window.Empty {
		return result, nil
	}

	rows, err := p.execute(ctx, op, query.Request{
		Params: params,
		Offset: window.RenderStart,
		Limit:  window.Len(),
	})
	if err != nil {
		return query.PageResult{}, err
	}
	result.Rows = nonNil(rows.Records)
	return result, nil
}

func nonNil(records []query.Record) []query.Record {
	if records == nil {
		return []query.Record{}
	}
	return records
}
