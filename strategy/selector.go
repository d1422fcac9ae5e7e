// Package strategy picks a pagination strategy from the estimated size of a result set.
package strategy

import "fmt"

// Kind names a pagination strategy.
type Kind string

const (
	Offset   Kind = "offset"
	Cursor   Kind = "cursor"
	Virtual  Kind = "virtual"
	Infinite Kind = "infinite"
)

// ParseKind accepts the kind names case-sensitively; "" parses to "" (no override).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", Offset, Cursor, Virtual, Infinite:
		return k, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Thresholds and tuning of each strategy.
const (
	OffsetBudgetRatio   = 0.10
	InfiniteBudgetRatio = 0.50
	VirtualMinItems     = 10000

	OffsetPageSize      = 50
	OffsetPrefetch      = 2
	InfinitePageSize    = 25
	InfinitePrefetch    = 1
	InfiniteAccumulated = 1000
	VirtualPageSize     = 100
	VirtualPrefetch     = 0
	VirtualRowCache     = 500
	CursorPageSize      = 50
	CursorPrefetch      = 1
	CursorRowCache      = 250
)

// Decision is a chosen strategy and its tuning.
type Decision struct {
	Kind          Kind  `json:"kind"`
	PageSize      int   `json:"page_size"`
	PrefetchPages int   `json:"prefetch_pages"`
	MaxCacheSize  int64 `json:"max_cache_size"`
}

// Choose picks a strategy for a dataset of estimatedTotalItems rows of avgItemBytes
// each, given availableMemoryBytes. Rules are evaluated in order, first match wins:
//
//  1. dataset under 10% of memory: offset pagination, the whole set is cheap to page
//  2. dataset under 50% of memory: infinite scroll with a bounded accumulation
//  3. more than 10000 rows: virtual scroll over a bounded row window
//  4. otherwise cursor pagination, which tolerates concurrent inserts and deletes
func Choose(estimatedTotalItems, avgItemBytes, availableMemoryBytes int64) Decision {
	if estimatedTotalItems < 0 {
		estimatedTotalItems = 0
	}
	if avgItemBytes < 0 {
		avgItemBytes = 0
	}

	footprint := float64(estimatedTotalItems) * float64(avgItemBytes)
	memory := float64(availableMemoryBytes)

	switch {
	case footprint < memory*OffsetBudgetRatio:
		return Decision{
			Kind:          Offset,
			PageSize:      OffsetPageSize,
			PrefetchPages: OffsetPrefetch,
			MaxCacheSize:  estimatedTotalItems,
		}
	case footprint < memory*InfiniteBudgetRatio:
		return Decision{
			Kind:          Infinite,
			PageSize:      InfinitePageSize,
			PrefetchPages: InfinitePrefetch,
			MaxCacheSize:  InfiniteAccumulated,
		}
	case estimatedTotalItems > VirtualMinItems:
		return Decision{
			Kind:          Virtual,
			PageSize:      VirtualPageSize,
			PrefetchPages: VirtualPrefetch,
			MaxCacheSize:  VirtualRowCache,
		}
	default:
		return Decision{
			Kind:          Cursor,
			PageSize:      CursorPageSize,
			PrefetchPages: CursorPrefetch,
			MaxCacheSize:  CursorRowCache,
		}
	}
}

// Defaults returns the tuning Choose would attach to kind, used when a caller forces
// a strategy.
func Defaults(kind Kind) Decision {
	switch kind {
	case Offset:
		return Decision{Kind: Offset, PageSize: OffsetPageSize, PrefetchPages: OffsetPrefetch}
	case Infinite:
		return Decision{Kind: Infinite, PageSize: InfinitePageSize, PrefetchPages: InfinitePrefetch, MaxCacheSize: InfiniteAccumulated}
	case Virtual:
		return Decision{Kind: Virtual, PageSize: VirtualPageSize, PrefetchPages: VirtualPrefetch, MaxCacheSize: VirtualRowCache}
	default:
		return Decision{Kind: Cursor, PageSize: CursorPageSize, PrefetchPages: CursorPrefetch, MaxCacheSize: CursorRowCache}
	}
}
