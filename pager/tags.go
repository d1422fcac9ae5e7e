package pager

import (
	"context"
	"slices"

	"github.com/goliatone/go-repository-pager/query"
)

type cacheTagsContextKey struct{}

// WithCacheTags attaches extra dependency tags to the context. Pages fetched with it
// are also evicted when any of the tagged entity types changes, which covers rows
// joined in by the executor that the request does not name.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := mergeTags(cacheTagsFromContext(ctx), tags)
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

// mergeTags canonicalizes extra and merges it into base, sorted and deduplicated.
func mergeTags(base []string, extra []string) []string {
	out := slices.Clone(base)
	for _, tag := range extra {
		if t := query.EntityTag(tag); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
