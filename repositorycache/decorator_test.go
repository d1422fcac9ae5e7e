package repositorycache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/executor/memexec"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/pager"
	"github.com/goliatone/go-repository-pager/query"
)

// TestInitiative represents a test entity
type TestInitiative struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// mockRepository records every call and returns writeErr from every write
type mockRepository[T any] struct {
	mu       sync.Mutex
	calls    []string
	result   T
	records  []T
	writeErr error
	onWrite  func(method string)
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	onWrite := m.onWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(method)
	}
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) read(method string) (T, error) {
	m.recordCall(method)
	return m.result, nil
}

func (m *mockRepository[T]) write(method string, record T) (T, error) {
	m.recordCall(method)
	if m.writeErr != nil {
		var zero T
		return zero, m.writeErr
	}
	return record, nil
}

func (m *mockRepository[T]) writeMany(method string, records []T) ([]T, error) {
	m.recordCall(method)
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	return records, nil
}

func (m *mockRepository[T]) del(method string) error {
	m.recordCall(method)
	return m.writeErr
}

func (m *mockRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("Get")
}
func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("GetByID")
}
func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("List")
	return m.records, len(m.records), nil
}
func (m *mockRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	return len(m.records), nil
}
func (m *mockRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("GetByIdentifier")
}
func (m *mockRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("GetTx")
}
func (m *mockRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("GetByIDTx")
}
func (m *mockRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("ListTx")
	return m.records, len(m.records), nil
}
func (m *mockRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("CountTx")
	return len(m.records), nil
}
func (m *mockRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return m.read("GetByIdentifierTx")
}
func (m *mockRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	m.recordCall("Raw")
	return m.records, nil
}
func (m *mockRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	m.recordCall("RawTx")
	return m.records, nil
}
func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return m.write("Create", record)
}
func (m *mockRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return m.write("CreateTx", record)
}
func (m *mockRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return m.writeMany("CreateMany", records)
}
func (m *mockRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return m.writeMany("CreateManyTx", records)
}
func (m *mockRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return m.write("GetOrCreate", record)
}
func (m *mockRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return m.write("GetOrCreateTx", record)
}
func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.write("Update", record)
}
func (m *mockRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.write("UpdateTx", record)
}
func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.writeMany("UpdateMany", records)
}
func (m *mockRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.writeMany("UpdateManyTx", records)
}
func (m *mockRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.write("Upsert", record)
}
func (m *mockRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return m.write("UpsertTx", record)
}
func (m *mockRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.writeMany("UpsertMany", records)
}
func (m *mockRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return m.writeMany("UpsertManyTx", records)
}
func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	return m.del("Delete")
}
func (m *mockRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.del("DeleteTx")
}
func (m *mockRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.del("DeleteMany")
}
func (m *mockRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.del("DeleteManyTx")
}
func (m *mockRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.del("DeleteWhere")
}
func (m *mockRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.del("DeleteWhereTx")
}
func (m *mockRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return m.del("ForceDelete")
}
func (m *mockRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return m.del("ForceDeleteTx")
}
func (m *mockRepository[T]) Handlers() repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{}
}

// recordingNotifier keeps every event it receives
type recordingNotifier struct {
	mu     sync.Mutex
	events []invalidation.Event
}

func (n *recordingNotifier) OnEvent(_ context.Context, ev invalidation.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return 1
}

func (n *recordingNotifier) get() []invalidation.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]invalidation.Event(nil), n.events...)
}

func TestWriteMethodsNotify(t *testing.T) {
	record := TestInitiative{ID: 42, Name: "Clean Water"}
	records := []TestInitiative{record, {ID: 43}}
	var tx bun.IDB

	tests := []struct {
		name     string
		op       func(context.Context, *InvalidatingRepository[TestInitiative]) error
		wantKind invalidation.Kind
		wantID   string
	}{
		{"Create", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.Create(ctx, record)
			return err
		}, invalidation.Created, "42"},
		{"CreateTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.CreateTx(ctx, tx, record)
			return err
		}, invalidation.Created, "42"},
		{"CreateMany", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.CreateMany(ctx, records)
			return err
		}, invalidation.Created, ""},
		{"CreateManyTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.CreateManyTx(ctx, tx, records)
			return err
		}, invalidation.Created, ""},
		{"GetOrCreate", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.GetOrCreate(ctx, record)
			return err
		}, invalidation.Created, "42"},
		{"GetOrCreateTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.GetOrCreateTx(ctx, tx, record)
			return err
		}, invalidation.Created, "42"},
		{"Update", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.Update(ctx, record)
			return err
		}, invalidation.Updated, "42"},
		{"UpdateTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpdateTx(ctx, tx, record)
			return err
		}, invalidation.Updated, "42"},
		{"UpdateMany", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpdateMany(ctx, records)
			return err
		}, invalidation.Updated, ""},
		{"UpdateManyTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpdateManyTx(ctx, tx, records)
			return err
		}, invalidation.Updated, ""},
		{"Upsert", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.Upsert(ctx, record)
			return err
		}, invalidation.Updated, "42"},
		{"UpsertTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpsertTx(ctx, tx, record)
			return err
		}, invalidation.Updated, "42"},
		{"UpsertMany", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpsertMany(ctx, records)
			return err
		}, invalidation.Updated, ""},
		{"UpsertManyTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			_, err := r.UpsertManyTx(ctx, tx, records)
			return err
		}, invalidation.Updated, ""},
		{"Delete", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.Delete(ctx, record)
		}, invalidation.Deleted, "42"},
		{"DeleteTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.DeleteTx(ctx, tx, record)
		}, invalidation.Deleted, "42"},
		{"DeleteMany", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.DeleteMany(ctx)
		}, invalidation.Deleted, ""},
		{"DeleteManyTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.DeleteManyTx(ctx, tx)
		}, invalidation.Deleted, ""},
		{"DeleteWhere", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.DeleteWhere(ctx)
		}, invalidation.Deleted, ""},
		{"DeleteWhereTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.DeleteWhereTx(ctx, tx)
		}, invalidation.Deleted, ""},
		{"ForceDelete", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.ForceDelete(ctx, record)
		}, invalidation.Deleted, "42"},
		{"ForceDeleteTx", func(ctx context.Context, r *InvalidatingRepository[TestInitiative]) error {
			return r.ForceDeleteTx(ctx, tx, record)
		}, invalidation.Deleted, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_Success", func(t *testing.T) {
			base := &mockRepository[TestInitiative]{}
			notifier := &recordingNotifier{}
			repo := New[TestInitiative](base, "Initiative", notifier)

			if err := tt.op(context.Background(), repo); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if calls := base.getCalls(); !reflect.DeepEqual(calls, []string{tt.name}) {
				t.Errorf("expected base calls [%s], got %v", tt.name, calls)
			}

			events := notifier.get()
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
			}
			if events[0].EntityType != "initiative" {
				t.Errorf("expected entity type 'initiative', got '%s'", events[0].EntityType)
			}
			if events[0].Kind != tt.wantKind {
				t.Errorf("expected kind '%s', got '%s'", tt.wantKind, events[0].Kind)
			}
			if events[0].EntityID != tt.wantID {
				t.Errorf("expected entity id '%s', got '%s'", tt.wantID, events[0].EntityID)
			}
		})

		t.Run(tt.name+"_Error", func(t *testing.T) {
			base := &mockRepository[TestInitiative]{writeErr: errors.New("write failed")}
			notifier := &recordingNotifier{}
			repo := New[TestInitiative](base, "Initiative", notifier)

			err := tt.op(context.Background(), repo)
			if err == nil || err.Error() != "write failed" {
				t.Fatalf("expected error 'write failed', got %v", err)
			}
			if events := notifier.get(); len(events) != 0 {
				t.Errorf("expected no events after a failed write, got %+v", events)
			}
		})
	}
}

func TestReadMethodsPassThrough(t *testing.T) {
	base := &mockRepository[TestInitiative]{
		result:  TestInitiative{ID: 1},
		records: []TestInitiative{{ID: 1}, {ID: 2}},
	}
	notifier := &recordingNotifier{}
	repo := New[TestInitiative](base, "initiative", notifier)

	ctx := context.Background()
	var tx bun.IDB

	_, _ = repo.Get(ctx)
	_, _ = repo.GetByID(ctx, "1")
	records, total, _ := repo.List(ctx)
	count, _ := repo.Count(ctx)
	_, _ = repo.GetByIdentifier(ctx, "one")
	_, _ = repo.GetTx(ctx, tx)
	_, _ = repo.GetByIDTx(ctx, tx, "1")
	_, _, _ = repo.ListTx(ctx, tx)
	_, _ = repo.CountTx(ctx, tx)
	_, _ = repo.GetByIdentifierTx(ctx, tx, "one")
	_, _ = repo.Raw(ctx, "UPDATE initiatives SET name = ?", "x")
	_, _ = repo.RawTx(ctx, tx, "SELECT 1")
	_ = repo.Handlers()

	if len(records) != 2 || total != 2 || count != 2 {
		t.Errorf("expected 2 records, total 2 and count 2, got %d, %d and %d", len(records), total, count)
	}

	expected := []string{
		"Get", "GetByID", "List", "Count", "GetByIdentifier",
		"GetTx", "GetByIDTx", "ListTx", "CountTx", "GetByIdentifierTx",
		"Raw", "RawTx",
	}
	if calls := base.getCalls(); !reflect.DeepEqual(calls, expected) {
		t.Errorf("expected calls %v, got %v", expected, calls)
	}
	if events := notifier.get(); len(events) != 0 {
		t.Errorf("expected reads to emit no events, got %+v", events)
	}
}

func TestRelatedEntities(t *testing.T) {
	notifier := &recordingNotifier{}
	repo := New[TestInitiative](&mockRepository[TestInitiative]{}, "Initiative", notifier,
		WithRelated("InitiativeArea", "program"))

	if err := repo.Delete(context.Background(), TestInitiative{ID: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := notifier.get()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != invalidation.Deleted || events[0].EntityID != "7" {
		t.Errorf("unexpected primary event %+v", events[0])
	}
	if events[1].EntityType != "InitiativeArea" || events[1].Kind != invalidation.Updated {
		t.Errorf("unexpected related event %+v", events[1])
	}
	if events[2].EntityType != "program" {
		t.Errorf("unexpected related event %+v", events[2])
	}
}

func TestNilNotifier(t *testing.T) {
	repo := New[TestInitiative](&mockRepository[TestInitiative]{}, "initiative", nil)
	if _, err := repo.Create(context.Background(), TestInitiative{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotifierFunc(t *testing.T) {
	var got []invalidation.Kind
	notifier := NotifierFunc(func(_ context.Context, ev invalidation.Event) int {
		got = append(got, ev.Kind)
		return 0
	})
	repo := New[TestInitiative](&mockRepository[TestInitiative]{}, "initiative", notifier)

	_, _ = repo.Upsert(context.Background(), TestInitiative{ID: 1})
	_ = repo.DeleteMany(context.Background())

	if !reflect.DeepEqual(got, []invalidation.Kind{invalidation.Updated, invalidation.Deleted}) {
		t.Errorf("unexpected kinds %v", got)
	}
}

func TestExtractID(t *testing.T) {
	type lower struct{ Id string }

	intRepo := New[TestInitiative](nil, "initiative", nil)
	if got := intRepo.extractID(TestInitiative{ID: 9}); got != "9" {
		t.Errorf("expected '9', got '%s'", got)
	}

	ptrRepo := New[*lower](nil, "initiative", nil)
	if got := ptrRepo.extractID(&lower{Id: "abc"}); got != "abc" {
		t.Errorf("expected 'abc', got '%s'", got)
	}
	if got := ptrRepo.extractID(nil); got != "" {
		t.Errorf("expected empty id for nil record, got '%s'", got)
	}

	mapRepo := New[map[string]any](nil, "initiative", nil)
	if got := mapRepo.extractID(map[string]any{"id": 1}); got != "" {
		t.Errorf("expected empty id for non-struct record, got '%s'", got)
	}
}

// Writes through the decorator evict the engine's cached pages before they return.
func TestEngineSeesWritesThroughDecorator(t *testing.T) {
	exec := memexec.New()
	exec.Load("initiative", []query.Record{{"id": int64(1), "name": "Alpha"}})

	engine, err := pager.New(exec, pager.DefaultConfig())
	if err != nil {
		t.Fatalf("pager.New: %v", err)
	}

	base := &mockRepository[TestInitiative]{}
	base.onWrite = func(method string) {
		if method == "Create" {
			exec.Upsert("initiative", "id", query.Record{"id": int64(2), "name": "Beta"})
		}
	}
	repo := New[TestInitiative](base, "Initiative", engine.Bus())

	ctx := context.Background()
	raw := query.RawParams{Tenant: "acme", Entity: "initiative"}

	first, err := engine.FetchPage(ctx, raw)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(first.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(first.Rows))
	}

	if _, err := repo.Create(ctx, TestInitiative{ID: 2, Name: "Beta"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second, err := engine.FetchPage(ctx, raw)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if second.FromCache {
		t.Error("expected the page to be refetched after a write")
	}
	if len(second.Rows) != 2 {
		t.Errorf("expected 2 rows after create, got %d", len(second.Rows))
	}
}

// Test repository interface satisfaction
func TestRepositoryInterfaceSatisfaction(t *testing.T) {
	var repo repository.Repository[TestInitiative] = New[TestInitiative](&mockRepository[TestInitiative]{}, "initiative", nil)
	if repo == nil {
		t.Error("InvalidatingRepository does not satisfy Repository interface")
	}
}
