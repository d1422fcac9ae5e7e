package repositorycache

import (
	"context"
	"fmt"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/query"
)

// Interface assertion to ensure InvalidatingRepository implements Repository[T]
var _ repository.Repository[any] = (*InvalidatingRepository[any])(nil)

// Notifier receives the invalidation events of successful writes.
// *invalidation.Bus implements it.
type Notifier interface {
	OnEvent(ctx context.Context, ev invalidation.Event) int
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev invalidation.Event) int

// OnEvent calls f.
func (f NotifierFunc) OnEvent(ctx context.Context, ev invalidation.Event) int {
	return f(ctx, ev)
}

// Option configures an InvalidatingRepository.
type Option func(*options)

type options struct {
	related []string
	logger  logrus.FieldLogger
}

// WithRelated also invalidates the given entity types on every write, for pages that
// join the written table.
func WithRelated(entityTypes ...string) Option {
	return func(o *options) {
		o.related = append(o.related, entityTypes...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// InvalidatingRepository decorates a base repository so that every successful write
// evicts the cached pages of its entity type. Reads pass through unchanged.
type InvalidatingRepository[T any] struct {
	base     repository.Repository[T]
	entity   string
	notifier Notifier
	related  []string
	logger   logrus.FieldLogger
}

// New creates an InvalidatingRepository writing through base and notifying notifier
// with events for entityType.
func New[T any](base repository.Repository[T], entityType string, notifier Notifier, opts ...Option) *InvalidatingRepository[T] {
	o := options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &InvalidatingRepository[T]{
		base:     base,
		entity:   query.EntityTag(entityType),
		notifier: notifier,
		related:  o.related,
		logger:   o.logger,
	}
}

// Get retrieves a single record using the provided criteria
func (r *InvalidatingRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.Get(ctx, criteria...)
}

// GetByID retrieves a record by ID with optional criteria
func (r *InvalidatingRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByID(ctx, id, criteria...)
}

// List retrieves multiple records using the provided criteria
func (r *InvalidatingRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.List(ctx, criteria...)
}

// Count returns the number of records matching the criteria
func (r *InvalidatingRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.Count(ctx, criteria...)
}

// GetByIdentifier retrieves a record by identifier with optional criteria
func (r *InvalidatingRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifier(ctx, identifier, criteria...)
}

// Create creates a new record and invalidates the entity's pages
func (r *InvalidatingRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := r.base.Create(ctx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Created, r.extractID(result))
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (r *InvalidatingRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := r.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Created, r.extractID(result))
	}
	return result, err
}

// CreateMany creates multiple records
func (r *InvalidatingRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := r.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Created, "")
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (r *InvalidatingRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := r.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Created, "")
	}
	return result, err
}

// GetOrCreate returns the existing record or creates it. Either way the entity's
// pages are invalidated, since the base repository does not report which happened.
func (r *InvalidatingRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := r.base.GetOrCreate(ctx, record)
	if err == nil {
		r.notify(ctx, invalidation.Created, r.extractID(result))
	}
	return result, err
}

// GetOrCreateTx is GetOrCreate within a transaction
func (r *InvalidatingRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := r.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		r.notify(ctx, invalidation.Created, r.extractID(result))
	}
	return result, err
}

// Update updates an existing record
func (r *InvalidatingRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.Update(ctx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, r.extractID(record))
	}
	return result, err
}

// UpdateTx updates an existing record within a transaction
func (r *InvalidatingRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, r.extractID(record))
	}
	return result, err
}

// UpdateMany updates multiple records
func (r *InvalidatingRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, "")
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (r *InvalidatingRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, "")
	}
	return result, err
}

// Upsert inserts or updates a record
func (r *InvalidatingRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.Upsert(ctx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, r.extractID(result))
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (r *InvalidatingRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := r.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, r.extractID(result))
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (r *InvalidatingRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, "")
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (r *InvalidatingRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := r.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Updated, "")
	}
	return result, err
}

// Delete removes a record
func (r *InvalidatingRepository[T]) Delete(ctx context.Context, record T) error {
	err := r.base.Delete(ctx, record)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, r.extractID(record))
	}
	return err
}

// DeleteTx removes a record within a transaction
func (r *InvalidatingRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := r.base.DeleteTx(ctx, tx, record)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, r.extractID(record))
	}
	return err
}

// DeleteMany removes the records matching criteria
func (r *InvalidatingRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteMany(ctx, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, "")
	}
	return err
}

// DeleteManyTx removes the records matching criteria within a transaction
func (r *InvalidatingRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, "")
	}
	return err
}

// DeleteWhere removes the records matching criteria
func (r *InvalidatingRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, "")
	}
	return err
}

// DeleteWhereTx removes the records matching criteria within a transaction
func (r *InvalidatingRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := r.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, "")
	}
	return err
}

// ForceDelete permanently removes a record
func (r *InvalidatingRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := r.base.ForceDelete(ctx, record)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, r.extractID(record))
	}
	return err
}

// ForceDeleteTx permanently removes a record within a transaction
func (r *InvalidatingRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := r.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		r.notify(ctx, invalidation.Deleted, r.extractID(record))
	}
	return err
}

// GetTx retrieves a single record within a transaction
func (r *InvalidatingRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID within a transaction
func (r *InvalidatingRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records within a transaction
func (r *InvalidatingRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.ListTx(ctx, tx, criteria...)
}

// CountTx counts records within a transaction
func (r *InvalidatingRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier within a transaction
func (r *InvalidatingRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw runs a raw query. Raw statements may write, but their effect is unknown, so
// callers running writes through Raw must invalidate themselves.
func (r *InvalidatingRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return r.base.Raw(ctx, sql, args...)
}

// RawTx runs a raw query within a transaction
func (r *InvalidatingRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return r.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the base repository's model handlers
func (r *InvalidatingRepository[T]) Handlers() repository.ModelHandlers[T] {
	return r.base.Handlers()
}

// notify emits one event for the repository entity and one per related entity type.
func (r *InvalidatingRepository[T]) notify(ctx context.Context, kind invalidation.Kind, id string) {
	if r.notifier == nil {
		return
	}

	removed := r.notifier.OnEvent(ctx, invalidation.Event{EntityType: r.entity, Kind: kind, EntityID: id})
	for _, related := range r.related {
		removed += r.notifier.OnEvent(ctx, invalidation.Event{EntityType: related, Kind: invalidation.Updated})
	}

	r.logger.WithFields(logrus.Fields{
		"entity_type": r.entity,
		"event":       kind,
		"entity_id":   id,
		"removed":     removed,
	}).Debug("write invalidated cached pages")
}

// extractID attempts to extract an ID field from a record using reflection
func (r *InvalidatingRepository[T]) extractID(record T) string {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}

	// Look for common ID field names
	for _, fieldName := range []string{"ID", "Id", "id"} {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface())
		}
	}
	return ""
}
