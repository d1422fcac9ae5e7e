package di

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-repository-pager/config"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/query"
)

func newBenchContainer(b *testing.B, rows int) *Container {
	b.Helper()

	cfg := config.Default()
	cfg.Log.Level = "error"
	container, err := NewContainer(cfg, WithExecutor(newMemExecutor(rows)))
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	return container
}

// BenchmarkFetchPage_Hit measures pages served from the page cache.
func BenchmarkFetchPage_Hit(b *testing.B) {
	container := newBenchContainer(b, 1000)
	engine := container.Engine()
	ctx := context.Background()
	req := firstPage()

	if _, err := engine.FetchPage(ctx, req); err != nil {
		b.Fatalf("FetchPage() failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.FetchPage(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFetchPage_Miss measures pages that go to the executor, by invalidating
// before every request.
func BenchmarkFetchPage_Miss(b *testing.B) {
	container := newBenchContainer(b, 1000)
	engine := container.Engine()
	ctx := context.Background()
	req := firstPage()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Invalidate(ctx, "initiative", invalidation.Updated)
		if _, err := engine.FetchPage(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFetchPage_Parallel measures concurrent readers spread over ten pages.
func BenchmarkFetchPage_Parallel(b *testing.B) {
	container := newBenchContainer(b, 1000)
	engine := container.Engine()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := query.RawParams{Tenant: "acme", Entity: "initiative", SortField: "id", Page: i%10 + 1, PageSize: 10}
			if _, err := engine.FetchPage(ctx, req); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}

// BenchmarkInvalidate measures eviction with a populated page cache.
func BenchmarkInvalidate(b *testing.B) {
	for _, pages := range []int{10, 100} {
		b.Run(fmt.Sprintf("pages=%d", pages), func(b *testing.B) {
			container := newBenchContainer(b, 1000)
			engine := container.Engine()
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				for p := 1; p <= pages; p++ {
					req := query.RawParams{Tenant: "acme", Entity: "initiative", SortField: "id", Page: p, PageSize: 10}
					if _, err := engine.FetchPage(ctx, req); err != nil {
						b.Fatal(err)
					}
				}
				b.StartTimer()
				engine.Invalidate(ctx, "initiative", invalidation.Updated)
			}
		})
	}
}
