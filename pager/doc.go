// Package pager is the data-access facade of the module. An Engine turns a raw list
// request into a normalized query, picks a pagination strategy for the query shape,
// serves the page from the tag-aware page cache or the executor, and keeps the cache
// consistent with invalidation events.
//
// # Basic Usage
//
//	engine, err := pager.New(executor, pager.DefaultConfig(), pager.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	go engine.Run(ctx, pgnotify.New(connString))
//
//	page, err := engine.FetchPage(ctx, query.RawParams{
//		Tenant:  "acme",
//		Entity:  "Initiative",
//		Filters: map[string]any{"status": []string{"active"}},
//	})
//
// # Strategy Selection
//
// Decisions are remembered per query shape, the request minus its page, cursor and
// viewport. Unknown shapes start from Config.DefaultEstimate; every fetched total
// count is fed back so later pages of a large result set move to infinite, virtual
// or cursor pagination. A request may force a strategy with RawParams.Strategy.
//
// # Invalidation
//
// Pages and counts are tagged with the request entity, its related entities and any
// tags attached with WithCacheTags. Invalidate, or an event arriving through Run,
// removes every entry carrying the event's entity type. A fetch that was in flight
// when the event arrived is served but not cached.
//
// # Failure Handling
//
// FetchPage returns invalid_parameter and upstream_query_failure errors from the
// errors package. Cache faults never fail a request: the page is served from the
// executor and a warning is logged.
package pager
