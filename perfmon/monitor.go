// Package perfmon keeps rolling latency and cache-hit aggregates per key family.
//
// Each family owns a fixed ring of samples. Writers claim a slot with an atomic
// increment and publish the sample with an atomic pointer store; readers load the
// slots without locking. The numbers are advisory: they feed dashboards and the
// optional Prometheus observer, never the strategy selector.
package perfmon

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultWindow is the number of samples kept per family.
const DefaultWindow = 100

// Sample is one served request.
type Sample struct {
	Key       string
	Strategy  string
	QueryTime time.Duration
	RowCount  int
	CacheHit  bool
	Err       error
	Timestamp time.Time
}

// Summary aggregates the samples currently held for a family.
type Summary struct {
	Family           string        `json:"family"`
	Samples          int           `json:"samples"`
	AverageQueryTime time.Duration `json:"average_query_time"`
	// CacheHitRate is hits over every sample in the window, failed requests
	// included, so an error burst lowers it.
	CacheHitRate     float64       `json:"cache_hit_rate"`
	ErrorRate        float64       `json:"error_rate"`
	AverageRows      float64       `json:"average_rows"`
}

// AverageQueryTimeMs returns the average in fractional milliseconds.
func (s Summary) AverageQueryTimeMs() float64 {
	return float64(s.AverageQueryTime) / float64(time.Millisecond)
}

// Observer is notified of every recorded sample.
type Observer interface {
	Observe(family string, s Sample)
}

type ring struct {
	slots []atomic.Pointer[Sample]
	next  atomic.Uint64
}

func newRing(size int) *ring {
	return &ring{slots: make([]atomic.Pointer[Sample], size)}
}

func (r *ring) add(s *Sample) {
	i := r.next.Add(1) - 1
	r.slots[i%uint64(len(r.slots))].Store(s)
}

func (r *ring) snapshot() []*Sample {
	out := make([]*Sample, 0, len(r.slots))
	for i := range r.slots {
		if s := r.slots[i].Load(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Monitor records samples per family.
type Monitor struct {
	window    int
	rings     *xsync.MapOf[string, *ring]
	observers []Observer
	now       func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithWindow sets the ring size per family.
func WithWindow(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithClock overrides the clock used to timestamp samples.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		window: DefaultWindow,
		rings:  xsync.NewMapOf[string, *ring](),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FamilyOf maps a page cache key ("t=acme::initiative::<hash>") to its family
// ("t=acme::initiative"). Keys with fewer segments are their own family.
func FamilyOf(key string) string {
	first := strings.Index(key, "::")
	if first < 0 {
		return key
	}
	second := strings.Index(key[first+2:], "::")
	if second < 0 {
		return key
	}
	return key[:first+2+second]
}

// Record stores s in the ring of key's family.
func (m *Monitor) Record(key string, s Sample) {
	family := FamilyOf(key)
	if s.Key == "" {
		s.Key = key
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = m.now()
	}

	r, _ := m.rings.LoadOrCompute(family, func() *ring { return newRing(m.window) })
	r.add(&s)

	for _, o := range m.observers {
		o.Observe(family, s)
	}
}

// AverageQueryTime returns the mean latency of the samples held for key's family.
func (m *Monitor) AverageQueryTime(key string) time.Duration {
	return m.Snapshot(key).AverageQueryTime
}

// AverageQueryTimeMs is AverageQueryTime in fractional milliseconds.
func (m *Monitor) AverageQueryTimeMs(key string) float64 {
	return m.Snapshot(key).AverageQueryTimeMs()
}

// CacheHitRate returns the share of samples served from cache, in [0, 1].
func (m *Monitor) CacheHitRate(key string) float64 {
	return m.Snapshot(key).CacheHitRate
}

// Snapshot aggregates the samples held for key's family.
func (m *Monitor) Snapshot(key string) Summary {
	family := FamilyOf(key)
	sum := Summary{Family: family}

	r, ok := m.rings.Load(family)
	if !ok {
		return sum
	}

	samples := r.snapshot()
	if len(samples) == 0 {
		return sum
	}

	var total time.Duration
	var hits, errs, rows int
	for _, s := range samples {
		total += s.QueryTime
		rows += s.RowCount
		if s.CacheHit {
			hits++
		}
		if s.Err != nil {
			errs++
		}
	}

	n := len(samples)
	sum.Samples = n
	sum.AverageQueryTime = total / time.Duration(n)
	sum.CacheHitRate = float64(hits) / float64(n)
	sum.ErrorRate = float64(errs) / float64(n)
	sum.AverageRows = float64(rows) / float64(n)
	return sum
}

// Families lists every family with recorded samples.
func (m *Monitor) Families() []string {
	var out []string
	m.rings.Range(func(family string, _ *ring) bool {
		out = append(out, family)
		return true
	})
	return out
}
