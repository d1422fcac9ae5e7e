package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	pagererrors "github.com/goliatone/go-repository-pager/errors"
)

// Entry is a cached value with its freshness and dependency metadata.
// Entries are never mutated once stored; a re-fetch replaces them wholesale.
type Entry[V any] struct {
	Key      string
	Value    V
	StoredAt time.Time
	TTL      time.Duration
	Tags     []string
	Size     int
}

// Servable reports whether the entry may still be returned at now.
func (e *Entry[V]) Servable(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// HasTag reports whether the entry depends on the given tag.
func (e *Entry[V]) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Fence is a snapshot of tag generations taken before a fetch starts.
// A fenced write is dropped when any of its tags was invalidated after the snapshot.
type Fence struct {
	epoch uint64
	gens  map[string]uint64
}

// StoreOption configures a Store.
type StoreOption[V any] func(*Store[V])

// WithClock overrides the time source, mainly for tests.
func WithClock[V any](now func() time.Time) StoreOption[V] {
	return func(s *Store[V]) {
		s.now = now
	}
}

// WithSizer overrides how entry sizes are estimated.
func WithSizer[V any](sizer func(V) int) StoreOption[V] {
	return func(s *Store[V]) {
		s.sizer = sizer
	}
}

// WithDefaultTTL sets the TTL used when Set receives a non-positive ttl.
func WithDefaultTTL[V any](ttl time.Duration) StoreOption[V] {
	return func(s *Store[V]) {
		s.defaultTTL = ttl
	}
}

// Store is a bounded, TTL-aware key to value map with tag invalidation.
//
// Reads go straight to the backend. Writes and invalidations are serialized by mu
// so that an invalidation is always ordered after any fenced write it races with.
type Store[V any] struct {
	backend    Backend[*Entry[V]]
	now        func() time.Time
	sizer      func(V) int
	defaultTTL time.Duration

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// NewStoreWithBackend builds a Store over an explicit backend.
func NewStoreWithBackend[V any](backend Backend[*Entry[V]], opts ...StoreOption[V]) *Store[V] {
	s := &Store[V]{
		backend:    backend,
		now:        time.Now,
		sizer:      msgpackSize[V],
		defaultTTL: 5 * time.Minute,
		gens:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value for key. Expired entries are purged on the way out.
func (s *Store[V]) Get(key string) (value V, ok bool, err error) {
	defer recoverFault("Get", &err)

	entry, found, err := s.backend.Get(key)
	if err != nil {
		return value, false, pagererrors.CacheUnavailable("Get", err)
	}
	if !found || entry == nil {
		return value, false, nil
	}

	if !entry.Servable(s.now()) {
		s.purgeExpired(key, entry)
		return value, false, nil
	}

	return entry.Value, true, nil
}

func (s *Store[V]) purgeExpired(key string, seen *Entry[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// only drop the exact entry we saw; a concurrent Set may have replaced it
	if current, ok, err := s.backend.Peek(key); err == nil && ok && current == seen {
		_ = s.backend.Delete(key)
	}
}

// Set inserts or replaces the value for key.
func (s *Store[V]) Set(key string, value V, ttl time.Duration, tags ...string) error {
	_, err := s.set(key, value, ttl, tags, nil)
	return err
}

// Fence snapshots the generations of tags. Take it before fetching the value that
// will later be passed to SetFenced with the same tags.
func (s *Store[V]) Fence(tags ...string) Fence {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := Fence{epoch: s.epoch, gens: make(map[string]uint64, len(tags))}
	for _, tag := range tags {
		f.gens[tag] = s.gens[tag]
	}
	return f
}

// SetFenced stores value unless one of its tags was invalidated (or the store was
// cleared) after fence was taken. It reports whether the value was stored.
func (s *Store[V]) SetFenced(key string, value V, ttl time.Duration, tags []string, fence Fence) (bool, error) {
	return s.set(key, value, ttl, tags, &fence)
}

func (s *Store[V]) set(key string, value V, ttl time.Duration, tags []string, fence *Fence) (stored bool, err error) {
	defer recoverFault("Set", &err)

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	entry := &Entry[V]{
		Key:   key,
		Value: value,
		TTL:   ttl,
		Tags:  normalizeTags(tags),
		Size:  s.sizer(value),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fence != nil && s.staleLocked(*fence) {
		return false, nil
	}

	entry.StoredAt = s.now()
	if err := s.backend.Set(key, entry); err != nil {
		return false, pagererrors.CacheUnavailable("Set", err)
	}
	return true, nil
}

func (s *Store[V]) staleLocked(f Fence) bool {
	if f.epoch != s.epoch {
		return true
	}
	for tag, gen := range f.gens {
		if s.gens[tag] != gen {
			return true
		}
	}
	return false
}

// InvalidateTag removes every entry tagged with entityType and returns how many were
// removed. The event kind does not narrow the eviction: creates, updates and deletes
// all change list results. Once it returns, no read can observe a removed entry and
// no write fenced before the call can resurrect one.
func (s *Store[V]) InvalidateTag(entityType, eventKind string) (removed int, err error) {
	defer recoverFault("InvalidateTag", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gens[entityType]++

	for _, key := range s.backend.Keys() {
		entry, ok, err := s.backend.Peek(key)
		if err != nil || !ok || entry == nil {
			continue
		}
		if entry.HasTag(entityType) {
			if err := s.backend.Delete(key); err != nil {
				return removed, pagererrors.CacheUnavailable("InvalidateTag", err)
			}
			removed++
		}
	}
	return removed, nil
}

// Delete removes a single key.
func (s *Store[V]) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(key); err != nil {
		return pagererrors.CacheUnavailable("Delete", err)
	}
	return nil
}

// Clear drops every entry and invalidates all outstanding fences.
func (s *Store[V]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if err := s.backend.Clear(); err != nil {
		return pagererrors.CacheUnavailable("Clear", err)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included until purged.
func (s *Store[V]) Len() int {
	return s.backend.Len()
}

// SizeBytes returns the approximate memory held by stored values.
func (s *Store[V]) SizeBytes() int64 {
	var total int64
	for _, key := range s.backend.Keys() {
		if entry, ok, err := s.backend.Peek(key); err == nil && ok && entry != nil {
			total += int64(entry.Size)
		}
	}
	return total
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func msgpackSize[V any](value V) int {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return 0
	}
	return len(data)
}

func recoverFault(op string, err *error) {
	if r := recover(); r != nil {
		*err = pagererrors.CacheUnavailable(op, fmt.Errorf("panic: %v", r))
	}
}
