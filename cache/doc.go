// Package cache provides the tag-aware page cache and key serialization used by the pager.
//
// # Overview
//
// This package exports:
//
//   - Store: a bounded, TTL-aware key to value map with invalidation by tag
//   - KeySerializer: builds stable, type-tagged keys from arbitrary arguments
//   - GetOrFetch: a read-through helper that never lets a store fault fail a read
//
// # Basic Usage
//
//	store, err := cache.NewStore[query.PageResult](cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	page, outcome, err := cache.GetOrFetch(ctx, store, key, time.Minute, []string{"initiative"},
//		func(ctx context.Context) (query.PageResult, error) {
//			return paginator.Fetch(ctx, params, keys.Shape, decision)
//		})
//
// # Freshness
//
// An entry is served only while now < StoredAt+TTL. Expired entries are removed
// lazily, on the read that finds them. Capacity is bounded by the backend: the
// default lru backend evicts the least recently used key when full, independent of
// TTL; the sturdyc backend evicts a percentage of a full shard.
//
// # Invalidation
//
// Entries carry the entity types they were built from as tags. InvalidateTag removes
// every entry carrying the tag with a linear scan over the keys, which is cheap at the
// few hundred live entries a process holds and avoids a reverse index.
//
// Invalidation always wins a race against a write. Take a Fence before fetching and
// pass it to SetFenced: when an invalidation for one of the tags lands while the fetch
// is in flight, the write is dropped instead of resurrecting stale data.
//
// # Key Serialization
//
// The default key serializer writes scalars with a type tag (s:, i:, u:, f:, b:, t:),
// maps in sorted key order, structs as exported name:value pairs and falls back to
// JSON for anything else. HashKey digests the result with xxhash64.
package cache
