package query

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-pager/cache"
	pagererrors "github.com/goliatone/go-repository-pager/errors"
	"github.com/goliatone/go-repository-pager/strategy"
)

const opNormalize = "query.Normalize"

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	tenantPattern     = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// NormalizerConfig holds the request rules applied by a Normalizer.
type NormalizerConfig struct {
	MaxPageSize      int    `mapstructure:"max_page_size"`
	MaxSearchLength  int    `mapstructure:"max_search_length"`
	DefaultSortField string `mapstructure:"default_sort_field"`
	DefaultSortOrder string `mapstructure:"default_sort_order"`
	// AllowedSortFields and AllowedFilterFields restrict requests when non-empty.
	AllowedSortFields   []string `mapstructure:"allowed_sort_fields"`
	AllowedFilterFields []string `mapstructure:"allowed_filter_fields"`
}

// DefaultNormalizerConfig returns a config capping pages at 100 rows, sorted by id.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		MaxPageSize:      100,
		MaxSearchLength:  256,
		DefaultSortField: "id",
		DefaultSortOrder: string(Asc),
	}
}

// Validate checks the config itself.
func (c NormalizerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxSearchLength, validation.Min(0)),
		validation.Field(&c.DefaultSortField, validation.Required, validation.Match(identifierPattern)),
		validation.Field(&c.DefaultSortOrder, validation.Required, validation.In(string(Asc), string(Desc))),
		validation.Field(&c.AllowedSortFields, validation.Each(validation.Match(identifierPattern))),
		validation.Field(&c.AllowedFilterFields, validation.Each(validation.Match(identifierPattern))),
	)
}

// Normalizer turns RawParams into deterministic Params and cache keys. Two requests
// that differ only in filter map order, slice order inside a filter or integer width
// produce the same keys.
type Normalizer struct {
	cfg        NormalizerConfig
	serializer cache.KeySerializer
}

// NewNormalizer creates a Normalizer. Zero fields of cfg fall back to the defaults.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	def := DefaultNormalizerConfig()
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.MaxSearchLength <= 0 {
		cfg.MaxSearchLength = def.MaxSearchLength
	}
	if cfg.DefaultSortField == "" {
		cfg.DefaultSortField = def.DefaultSortField
	}
	if cfg.DefaultSortOrder == "" {
		cfg.DefaultSortOrder = def.DefaultSortOrder
	}
	cfg.DefaultSortOrder = strings.ToLower(cfg.DefaultSortOrder)

	return &Normalizer{
		cfg:        cfg,
		serializer: cache.NewDefaultKeySerializer(),
	}
}

// Config returns the effective rules.
func (n *Normalizer) Config() NormalizerConfig {
	return n.cfg
}

// Normalize validates raw and returns its canonical form with the derived keys.
// Every failure is an InvalidParameter error naming the offending field.
func (n *Normalizer) Normalize(raw RawParams) (Params, Keys, error) {
	in := raw
	in.Tenant = strings.TrimSpace(raw.Tenant)
	in.Entity = strings.TrimSpace(raw.Entity)
	in.SortField = strings.TrimSpace(raw.SortField)
	in.SortOrder = strings.ToLower(strings.TrimSpace(raw.SortOrder))
	in.Search = strings.TrimSpace(raw.Search)

	if err := n.validate(&in); err != nil {
		return Params{}, Keys{}, err
	}

	params := Params{
		Tenant:    in.Tenant,
		Entity:    EntityTag(in.Entity),
		Tags:      entityTags(in.Entity, in.Related),
		SortField: in.SortField,
		SortOrder: SortOrder(in.SortOrder),
		Page:      max(in.Page, 1),
		PageSize:  min(in.PageSize, n.cfg.MaxPageSize),
		Search:    in.Search,
		Strategy:  strategy.Kind(in.Strategy),
		Viewport:  in.Viewport,
	}
	if params.SortField == "" {
		params.SortField = n.cfg.DefaultSortField
	}
	if params.SortOrder == "" {
		params.SortOrder = SortOrder(n.cfg.DefaultSortOrder)
	}

	filters, err := n.normalizeFilters(in.Filters)
	if err != nil {
		return Params{}, Keys{}, err
	}
	params.Filters = filters

	if in.Cursor != "" {
		if params.Page > 1 {
			return Params{}, Keys{}, pagererrors.InvalidParameterf(opNormalize, "cursor", "cursor cannot be combined with page %d", params.Page)
		}
		c, err := DecodeCursor(in.Cursor)
		if err != nil {
			return Params{}, Keys{}, pagererrors.InvalidParameter(opNormalize, "cursor", err)
		}
		if c.SortField != params.SortField || c.SortOrder != params.SortOrder {
			return Params{}, Keys{}, pagererrors.InvalidParameterf(opNormalize, "cursor",
				"cursor was issued for sort %s %s", c.SortField, c.SortOrder)
		}
		params.Cursor = &c
		params.CursorToken = in.Cursor
	}

	return params, n.Keys(params), nil
}

func (n *Normalizer) validate(in *RawParams) error {
	sortRules := []validation.Rule{validation.Match(identifierPattern)}
	if len(n.cfg.AllowedSortFields) > 0 {
		sortRules = append(sortRules, validation.In(toAny(n.cfg.AllowedSortFields)...))
	}

	err := validation.ValidateStruct(in,
		validation.Field(&in.Tenant, validation.Required, validation.Match(tenantPattern)),
		validation.Field(&in.Entity, validation.Required, validation.Match(identifierPattern)),
		validation.Field(&in.Related, validation.Each(validation.Required, validation.Match(identifierPattern))),
		validation.Field(&in.SortField, sortRules...),
		validation.Field(&in.SortOrder, validation.In(string(Asc), string(Desc))),
		validation.Field(&in.Page, validation.Min(0)),
		validation.Field(&in.PageSize, validation.Min(0)),
		validation.Field(&in.Search, validation.RuneLength(0, n.cfg.MaxSearchLength)),
		validation.Field(&in.Strategy, validation.By(func(value any) error {
			_, err := strategy.ParseKind(value.(string))
			return err
		})),
		validation.Field(&in.Viewport),
	)
	return asInvalidParameter(err)
}

// asInvalidParameter reports the first failing field, in name order, so the error is
// stable across calls.
func asInvalidParameter(err error) error {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validation.Errors)
	if !ok || len(verrs) == 0 {
		return pagererrors.InvalidParameter(opNormalize, "", err)
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return pagererrors.InvalidParameter(opNormalize, fields[0], verrs[fields[0]])
}

func (n *Normalizer) normalizeFilters(raw map[string]any) ([]Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	filters := make([]Filter, 0, len(fields))
	for _, field := range fields {
		if !identifierPattern.MatchString(field) {
			return nil, pagererrors.InvalidParameterf(opNormalize, "filters."+field, "filter field must be an identifier")
		}
		if len(n.cfg.AllowedFilterFields) > 0 && !slices.Contains(n.cfg.AllowedFilterFields, field) {
			return nil, pagererrors.InvalidParameterf(opNormalize, "filters."+field, "filtering on %q is not allowed", field)
		}

		values, err := filterValues(raw[field])
		if err != nil {
			return nil, pagererrors.InvalidParameter(opNormalize, "filters."+field, err)
		}
		filters = append(filters, Filter{Field: field, Values: values})
	}
	return filters, nil
}

// filterValues widens a scalar or a slice of scalars into a sorted, duplicate-free
// value list.
func filterValues(v any) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("filter value must not be nil")
	}

	if w, ok := widen(v); ok {
		if f, isFloat := w.(float64); isFloat && math.IsNaN(f) {
			return nil, fmt.Errorf("filter value must not be NaN")
		}
		return []any{w}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unsupported filter value of type %T", v)
	}
	if rv.Len() == 0 {
		return nil, fmt.Errorf("filter value list must not be empty")
	}

	values := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		w, ok := widen(item)
		if !ok {
			return nil, fmt.Errorf("unsupported filter value of type %T at index %d", item, i)
		}
		if f, isFloat := w.(float64); isFloat && math.IsNaN(f) {
			return nil, fmt.Errorf("filter value must not be NaN")
		}
		values = append(values, w)
	}

	sort.SliceStable(values, func(i, j int) bool { return Compare(values[i], values[j]) < 0 })
	return slices.CompactFunc(values, func(a, b any) bool { return Compare(a, b) == 0 }), nil
}

func entityTags(entity string, related []string) []string {
	tags := make([]string, 0, len(related)+1)
	tags = append(tags, EntityTag(entity))
	for _, r := range related {
		tags = append(tags, EntityTag(r))
	}
	sort.Strings(tags)
	return slices.Compact(tags)
}

// Keys derives the cache keys of already normalized params. Callers that add tags
// after Normalize must recompute the keys, the tags are part of both.
func (n *Normalizer) Keys(p Params) Keys {
	family := "t=" + p.Tenant + cache.KeySeparator + p.Entity
	shape := []any{p.Tags, p.Filters, p.SortField, string(p.SortOrder), p.Search, string(p.Strategy)}

	page := append(slices.Clone(shape), p.Page, p.PageSize, p.CursorToken, p.Viewport)

	return Keys{
		Key:    family + cache.KeySeparator + n.serializer.HashKey("page", page...),
		Shape:  family + cache.KeySeparator + n.serializer.HashKey("shape", shape...),
		Family: family,
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
