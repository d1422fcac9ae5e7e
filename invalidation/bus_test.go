package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	mu      sync.Mutex
	calls   []string
	removed int
	err     error
}

func (r *recordingTarget) InvalidateTag(entityType, eventKind string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, entityType+":"+eventKind)
	return r.removed, r.err
}

func (r *recordingTarget) getCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestBus(opts ...Option) (*Bus, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewBus(append([]Option{WithLogger(logger)}, opts...)...), hook
}

func TestOnEvent_FansOutCanonicalTag(t *testing.T) {
	bus, _ := newTestBus()

	pages := &recordingTarget{removed: 3}
	counts := &recordingTarget{removed: 1}
	bus.Register("pages", pages)
	bus.Register("counts", counts)

	removed := bus.OnEvent(context.Background(), Event{EntityType: "InitiativeArea", Kind: Deleted})
	assert.Equal(t, 4, removed)
	assert.Equal(t, []string{"initiative_area:deleted"}, pages.getCalls())
	assert.Equal(t, []string{"initiative_area:deleted"}, counts.getCalls())

	processed, evicted := bus.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(4), evicted)
}

func TestOnEvent_TargetFailureIsLogged(t *testing.T) {
	bus, hook := newTestBus()

	failing := &recordingTarget{err: errors.New("store fault")}
	healthy := &recordingTarget{removed: 2}
	bus.Register("failing", failing)
	bus.Register("healthy", healthy)

	removed := bus.OnEvent(context.Background(), Event{EntityType: "initiative"})
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"initiative:updated"}, healthy.getCalls())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["target"] == "failing" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOnEvent_NoTargets(t *testing.T) {
	bus, _ := newTestBus()
	assert.Equal(t, 0, bus.OnEvent(context.Background(), Event{EntityType: "unknown"}))
}

func TestRun_PublishAndSources(t *testing.T) {
	bus, _ := newTestBus(WithBufferSize(4))

	target := &recordingTarget{}
	bus.Register("pages", target)

	feed := make(chan Event, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx, ChanSource(feed)) }()

	require.NoError(t, bus.Publish(ctx, Event{EntityType: "initiative", Kind: Created}))
	feed <- Event{EntityType: "organization", Kind: Updated}

	require.Eventually(t, func() bool { return len(target.getCalls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"initiative:created", "organization:updated"}, target.getCalls())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_PreservesPublishOrder(t *testing.T) {
	bus, _ := newTestBus(WithBufferSize(16))

	target := &recordingTarget{}
	bus.Register("pages", target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kinds := []Kind{Created, Updated, Deleted, Updated}
	for _, k := range kinds {
		require.NoError(t, bus.Publish(ctx, Event{EntityType: "initiative", Kind: k}))
	}

	go func() { _ = bus.Run(ctx) }()

	require.Eventually(t, func() bool { return len(target.getCalls()) == len(kinds) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"initiative:created", "initiative:updated", "initiative:deleted", "initiative:updated",
	}, target.getCalls())
}

func TestRun_SourceError(t *testing.T) {
	bus, _ := newTestBus()

	boom := errors.New("listener lost connection")
	err := bus.Run(context.Background(), SourceFunc(func(ctx context.Context, out chan<- Event) error {
		return boom
	}))
	assert.ErrorIs(t, err, boom)
}

func TestPublish_BlocksUntilContextDone(t *testing.T) {
	bus, _ := newTestBus(WithBufferSize(1))

	require.NoError(t, bus.Publish(context.Background(), Event{EntityType: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, Event{EntityType: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bus, _ := newTestBus(WithClock(func() time.Time { return at }))

	ev := bus.stamp(Event{EntityType: "initiative"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, at, ev.ReceivedAt)
	assert.Equal(t, Updated, ev.Kind)

	kept := bus.stamp(Event{ID: "fixed", EntityType: "initiative", Kind: Deleted})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, Deleted, kept.Kind)
}
