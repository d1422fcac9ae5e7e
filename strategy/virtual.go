package strategy

import (
	"errors"
	"math"
)

// VirtualConfig describes the viewport a virtual-scroll window is computed for.
type VirtualConfig struct {
	ItemHeight      float64 `json:"item_height"`
	ContainerHeight float64 `json:"container_height"`
	Overscan        int     `json:"overscan"`
	// Threshold is how close to the end, in rows, the viewport may get before
	// more rows should be loaded.
	Threshold int `json:"threshold"`
}

// Window is the slice of rows a virtual-scroll viewport needs.
// All indexes are inclusive. An empty dataset yields Empty with -1 indexes.
type Window struct {
	VisibleStart int     `json:"visible_start"`
	VisibleEnd   int     `json:"visible_end"`
	RenderStart  int     `json:"render_start"`
	RenderEnd    int     `json:"render_end"`
	LoadMore     bool    `json:"load_more"`
	OffsetY      float64 `json:"offset_y"`
	TotalHeight  float64 `json:"total_height"`
	Empty        bool    `json:"empty"`
}

// Len returns the number of rows in the render window.
func (w Window) Len() int {
	if w.Empty {
		return 0
	}
	return w.RenderEnd - w.RenderStart + 1
}

var (
	ErrItemHeight      = errors.New("item height must be greater than 0")
	ErrContainerHeight = errors.New("container height must not be negative")
	ErrNegativeWindow  = errors.New("overscan, threshold and scroll offset must not be negative")
	ErrScrollOffset    = errors.New("scroll offset must be finite")
)

// Validate checks the viewport geometry.
func (c VirtualConfig) Validate() error {
	if !(c.ItemHeight > 0) || math.IsInf(c.ItemHeight, 0) {
		return ErrItemHeight
	}
	if c.ContainerHeight < 0 || math.IsNaN(c.ContainerHeight) || math.IsInf(c.ContainerHeight, 0) {
		return ErrContainerHeight
	}
	if c.Overscan < 0 || c.Threshold < 0 {
		return ErrNegativeWindow
	}
	return nil
}

// CalculateVirtualScroll computes the rows to render for a viewport scrolled to
// scrollTop over totalItems rows:
//
//	visibleStart = floor(scrollTop / itemHeight)
//	visibleEnd   = min(totalItems-1, ceil((scrollTop+containerHeight) / itemHeight))
//
// The render window widens the visible range by Overscan on both sides, clamped to
// [0, totalItems-1]. LoadMore is set once visibleEnd >= totalItems-Threshold.
func CalculateVirtualScroll(cfg VirtualConfig, scrollTop float64, totalItems int) (Window, error) {
	if err := cfg.Validate(); err != nil {
		return Window{}, err
	}
	if scrollTop < 0 || math.IsNaN(scrollTop) {
		return Window{}, ErrNegativeWindow
	}
	if math.IsInf(scrollTop, 1) {
		return Window{}, ErrScrollOffset
	}

	w := Window{TotalHeight: float64(max(totalItems, 0)) * cfg.ItemHeight}
	if totalItems <= 0 {
		w.VisibleStart, w.VisibleEnd = -1, -1
		w.RenderStart, w.RenderEnd = -1, -1
		w.Empty = true
		return w, nil
	}

	last := totalItems - 1

	// clamp in float space, a huge offset would overflow int
	w.VisibleStart = int(math.Min(math.Floor(scrollTop/cfg.ItemHeight), float64(last)))
	w.VisibleEnd = int(math.Min(math.Ceil((scrollTop+cfg.ContainerHeight)/cfg.ItemHeight), float64(last)))

	overscan := min(cfg.Overscan, last)
	w.RenderStart = max(0, w.VisibleStart-overscan)
	w.RenderEnd = min(last, w.VisibleEnd+overscan)

	w.LoadMore = w.VisibleEnd >= totalItems-cfg.Threshold
	w.OffsetY = float64(w.RenderStart) * cfg.ItemHeight
	return w, nil
}
