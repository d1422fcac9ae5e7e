package cacheinfra

import (
	"github.com/viccon/sturdyc"
)

// sturdycBackend wraps a sturdyc client. sturdyc bounds memory per shard and
// evicts EvictionPercentage of the oldest entries when a shard fills up, so its
// eviction order is only approximately LRU.
type sturdycBackend[V any] struct {
	client *sturdyc.Client[V]
}

// NewSturdycBackend creates a new sturdyc container.
//
// The constructor translates Config parameters to sturdyc initialization:
// - Capacity, NumShards, TTL, EvictionPercentage are passed to sturdyc.New()
// - Other options are applied via ToSturdycOptions()
func NewSturdycBackend[V any](cfg Config) (*sturdycBackend[V], error) {
	cfg.Backend = BackendSturdyc
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[V](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &sturdycBackend[V]{client: client}, nil
}

func (b *sturdycBackend[V]) Get(key string) (V, bool, error) {
	v, ok := b.client.Get(key)
	return v, ok, nil
}

// Peek is Get: sturdyc does not track read recency.
func (b *sturdycBackend[V]) Peek(key string) (V, bool, error) {
	return b.Get(key)
}

func (b *sturdycBackend[V]) Set(key string, value V) error {
	b.client.Set(key, value)
	return nil
}

func (b *sturdycBackend[V]) Delete(key string) error {
	b.client.Delete(key)
	return nil
}

func (b *sturdycBackend[V]) Keys() []string {
	return b.client.ScanKeys()
}

func (b *sturdycBackend[V]) Len() int {
	return b.client.Size()
}

func (b *sturdycBackend[V]) Clear() error {
	for _, key := range b.client.ScanKeys() {
		b.client.Delete(key)
	}
	return nil
}
