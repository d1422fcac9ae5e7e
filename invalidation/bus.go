// Package invalidation routes entity-changed events to the caches that hold results
// derived from those entities.
//
// A Bus owns a buffered event channel. Sources (Postgres LISTEN/NOTIFY, Redis
// pub/sub, in-process channels) feed it; a single consumer applies events in arrival
// order by calling InvalidateTag on every registered target.
package invalidation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-pager/query"
)

// DefaultBufferSize is the capacity of the event channel.
const DefaultBufferSize = 256

// Invalidator is anything holding entries tagged by entity type. *cache.Store
// satisfies it.
type Invalidator interface {
	InvalidateTag(entityType, eventKind string) (int, error)
}

// Source delivers events into out until ctx is done or it fails.
type Source interface {
	Listen(ctx context.Context, out chan<- Event) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, out chan<- Event) error

// Listen calls f.
func (f SourceFunc) Listen(ctx context.Context, out chan<- Event) error {
	return f(ctx, out)
}

type target struct {
	name string
	inv  Invalidator
}

// Bus fans events out to invalidation targets.
type Bus struct {
	mu      sync.RWMutex
	targets []target

	events chan Event
	logger logrus.FieldLogger
	now    func() time.Time

	processed *xsync.Counter
	evicted   *xsync.Counter
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the event channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.events = make(chan Event, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates a Bus with no targets.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		events:    make(chan Event, DefaultBufferSize),
		logger:    logrus.StandardLogger(),
		now:       time.Now,
		processed: xsync.NewCounter(),
		evicted:   xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a target. Events are applied to targets in registration order.
func (b *Bus) Register(name string, inv Invalidator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, target{name: name, inv: inv})
}

// OnEvent applies ev synchronously and returns the number of entries removed across
// all targets. Unknown entity types remove nothing.
func (b *Bus) OnEvent(ctx context.Context, ev Event) int {
	ev = b.stamp(ev)
	tag := query.EntityTag(ev.EntityType)

	b.mu.RLock()
	targets := b.targets
	b.mu.RUnlock()

	removed := 0
	for _, t := range targets {
		n, err := t.inv.InvalidateTag(tag, string(ev.Kind))
		removed += n
		if err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"target":      t.name,
				"entity_type": tag,
				"event_id":    ev.ID,
			}).Warn("invalidation target failed")
		}
	}

	b.processed.Inc()
	b.evicted.Add(int64(removed))

	b.logger.WithFields(logrus.Fields{
		"entity_type": tag,
		"event":       ev.Kind,
		"event_id":    ev.ID,
		"removed":     removed,
		"lag":         b.now().Sub(ev.ReceivedAt),
	}).Debug("invalidation applied")

	return removed
}

// Publish enqueues ev for the consumer started by Run. It blocks until there is
// room in the buffer or ctx is done.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	ev = b.stamp(ev)
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes published events and runs every source until ctx is done. It
// returns nil on cancellation and the first source error otherwise, after stopping
// the other sources.
func (b *Bus) Run(ctx context.Context, sources ...Source) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-b.events:
				b.OnEvent(gctx, ev)
			}
		}
	})

	for _, src := range sources {
		g.Go(func() error {
			return src.Listen(gctx, b.events)
		})
	}

	b.logger.WithField("sources", len(sources)).Info("invalidation bus started")
	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if err != nil {
		b.logger.WithError(err).Error("invalidation bus stopped")
		return err
	}
	b.logger.Info("invalidation bus stopped")
	return nil
}

// Stats returns the number of events applied and entries removed so far.
func (b *Bus) Stats() (processed, evicted int64) {
	return b.processed.Value(), b.evicted.Value()
}

func (b *Bus) stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = b.now()
	}
	if ev.Kind == "" {
		ev.Kind = Updated
	}
	return ev
}

// ChanSource forwards events from an existing channel until it is closed.
type ChanSource <-chan Event

// Listen implements Source.
func (c ChanSource) Listen(ctx context.Context, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c:
			if !ok {
				return nil
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
