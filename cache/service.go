package cache

import (
	"context"
	"time"
)

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
	HashKey(namespace string, args ...any) string
}

// Backend is the bounded key/value container a Store keeps its entries in.
// Implementations must be safe for concurrent use and must bound their own size.
type Backend[E any] interface {
	// Get returns the value and marks it as recently used.
	Get(key string) (E, bool, error)
	// Peek returns the value without touching recency.
	Peek(key string) (E, bool, error)
	Set(key string, value E) error
	Delete(key string) error
	Keys() []string
	Len() int
	Clear() error
}

// FetchFn is the function signature GetOrFetch expects when fetching from the source of truth.
type FetchFn[V any] func(ctx context.Context) (V, error)

// Outcome describes how GetOrFetch served a value.
type Outcome struct {
	Hit bool
	// Stored is false when the fetched value was dropped because an invalidation
	// for one of its tags arrived while the fetch was in flight.
	Stored bool
	// CacheErr holds the store fault when the cache was bypassed.
	CacheErr error
}

// Bypassed reports whether the store faulted and the value came straight from fetchFn.
func (o Outcome) Bypassed() bool {
	return o.CacheErr != nil
}

// GetOrFetch is a read-through helper over a Store. Store faults never fail the call:
// the value is served from fetchFn and the fault is reported in Outcome.CacheErr.
// Errors from fetchFn are returned unchanged and nothing is cached.
func GetOrFetch[V any](ctx context.Context, store *Store[V], key string, ttl time.Duration, tags []string, fetchFn FetchFn[V]) (V, Outcome, error) {
	var out Outcome

	value, ok, err := store.Get(key)
	if err != nil {
		out.CacheErr = err
	} else if ok {
		out.Hit = true
		return value, out, nil
	}

	fence := store.Fence(tags...)

	value, err = fetchFn(ctx)
	if err != nil {
		var zero V
		return zero, out, err
	}

	if out.CacheErr != nil {
		return value, out, nil
	}

	stored, err := store.SetFenced(key, value, ttl, tags, fence)
	if err != nil {
		out.CacheErr = err
		return value, out, nil
	}
	out.Stored = stored
	return value, out, nil
}
