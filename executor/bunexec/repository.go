package bunexec

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-pager/query"
)

// RecordMapper converts a model into the record the pager caches and returns.
type RecordMapper[T any] func(T) query.Record

// RepositoryExecutor serves one entity type through a go-repository-bun repository.
type RepositoryExecutor[T any] struct {
	entity string
	repo   repository.Repository[T]
	mapper RecordMapper[T]
	cfg    config
}

// NewRepositoryExecutor creates an executor for entity backed by repo. A nil mapper
// maps models by their bun column names.
func NewRepositoryExecutor[T any](entity string, repo repository.Repository[T], mapper RecordMapper[T], opts ...Option) *RepositoryExecutor[T] {
	if mapper == nil {
		mapper = ColumnMapper[T]
	}
	return &RepositoryExecutor[T]{
		entity: query.EntityTag(entity),
		repo:   repo,
		mapper: mapper,
		cfg:    newConfig(opts),
	}
}

// Entity returns the entity type the executor serves.
func (e *RepositoryExecutor[T]) Entity() string {
	return e.entity
}

// Execute implements query.Executor.
func (e *RepositoryExecutor[T]) Execute(ctx context.Context, req query.Request) (query.Rows, error) {
	if got := query.EntityTag(req.Params.Entity); got != e.entity {
		return query.Rows{}, fmt.Errorf("repository for %s cannot serve %s", e.entity, got)
	}

	out := query.Rows{Records: []query.Record{}}
	filter := func(q *bun.SelectQuery) *bun.SelectQuery {
		return e.cfg.where(q, req.Params)
	}

	// List counts with the seek predicate applied, so seeks count separately
	if req.CountTotal && (req.Limit == 0 || req.After != nil) {
		n, err := e.repo.Count(ctx, filter)
		if err != nil {
			return query.Rows{}, fmt.Errorf("count %s: %w", e.entity, err)
		}
		total := int64(n)
		out.Total = &total
	}

	if req.Limit == 0 {
		return out, nil
	}

	models, total, err := e.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return page(filter(q), req)
	})
	if err != nil {
		return query.Rows{}, fmt.Errorf("list %s: %w", e.entity, err)
	}

	if req.CountTotal && out.Total == nil {
		t := int64(total)
		out.Total = &t
	}

	out.Records = make([]query.Record, len(models))
	for i, m := range models {
		out.Records[i] = e.mapper(m)
	}
	return out, nil
}

// ColumnMapper maps the exported fields of a struct model by their bun column
// names. Fields tagged bun:"-", relations and the embedded bun.BaseModel are
// skipped; untagged fields use their snake_case name.
func ColumnMapper[T any](model T) query.Record {
	v := reflect.ValueOf(model)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return query.Record{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return query.Record{}
	}

	rec := make(query.Record, v.NumField())
	mapFields(v, rec)
	return rec
}

var baseModelType = reflect.TypeOf(bun.BaseModel{})

func mapFields(v reflect.Value, rec query.Record) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type == baseModelType || !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("bun")
		if tag == "-" || strings.Contains(tag, "rel:") || strings.Contains(tag, "m2m:") {
			continue
		}

		if field.Anonymous && tag == "" && field.Type.Kind() == reflect.Struct {
			mapFields(v.Field(i), rec)
			continue
		}

		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = query.EntityTag(field.Name)
		}
		rec[name] = query.Widen(v.Field(i).Interface())
	}
}
