package cacheinfra

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// lruBackend is a strict LRU container. When full, Set evicts the least recently
// read or written key regardless of its remaining TTL.
type lruBackend[V any] struct {
	cache *lru.Cache[string, V]
}

// NewLRUBackend creates an LRU container bounded by cfg.Capacity.
func NewLRUBackend[V any](cfg Config) (*lruBackend[V], error) {
	if cfg.Capacity <= 0 {
		return nil, &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	cache, err := lru.New[string, V](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	return &lruBackend[V]{cache: cache}, nil
}

func (b *lruBackend[V]) Get(key string) (V, bool, error) {
	v, ok := b.cache.Get(key)
	return v, ok, nil
}

func (b *lruBackend[V]) Peek(key string) (V, bool, error) {
	v, ok := b.cache.Peek(key)
	return v, ok, nil
}

func (b *lruBackend[V]) Set(key string, value V) error {
	b.cache.Add(key, value)
	return nil
}

func (b *lruBackend[V]) Delete(key string) error {
	b.cache.Remove(key)
	return nil
}

// Keys returns keys from oldest to newest.
func (b *lruBackend[V]) Keys() []string {
	return b.cache.Keys()
}

func (b *lruBackend[V]) Len() int {
	return b.cache.Len()
}

func (b *lruBackend[V]) Clear() error {
	b.cache.Purge()
	return nil
}
