// Package errors defines the error taxonomy shared by the pager components.
//
// Every error surfaced by the engine is an *Error carrying a Kind. Callers use
// the standard library errors.Is against the exported sentinels, or IsRetryable
// to decide whether to back off and try again.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the category of an engine error.
type Kind string

const (
	// KindInvalidParameter is a malformed or out-of-range request. Never retryable.
	KindInvalidParameter Kind = "invalid_parameter"
	// KindUpstreamQuery is a failure reported by the query executor. Retryable.
	KindUpstreamQuery Kind = "upstream_query_failure"
	// KindCacheUnavailable is an internal cache store fault.
	KindCacheUnavailable Kind = "cache_unavailable"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUpstreamQuery    = errors.New("upstream query failure")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

var sentinels = map[Kind]error{
	KindInvalidParameter: ErrInvalidParameter,
	KindUpstreamQuery:    ErrUpstreamQuery,
	KindCacheUnavailable: ErrCacheUnavailable,
}

// Error is a typed engine error.
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Fields map[string]string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + "=" + e.Fields[name]
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrUpstreamQuery)
// holds for every upstream failure regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Op == "" || e.Op == t.Op)
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidParameter reports a rejected request field.
func InvalidParameter(op, field string, err error) *Error {
	e := New(KindInvalidParameter, op, err)
	if field != "" {
		e.Fields = map[string]string{"field": field}
	}
	return e
}

// InvalidParameterf is InvalidParameter with a formatted cause.
func InvalidParameterf(op, field, format string, args ...any) *Error {
	return InvalidParameter(op, field, fmt.Errorf(format, args...))
}

// UpstreamQuery wraps an executor failure.
func UpstreamQuery(op string, err error) *Error {
	return New(KindUpstreamQuery, op, err)
}

// CacheUnavailable wraps a cache store fault.
func CacheUnavailable(op string, err error) *Error {
	return New(KindCacheUnavailable, op, err)
}

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation with backoff.
// Only upstream query failures qualify; the engine never retries on its own.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUpstreamQuery
}

// IsInvalidParameter reports whether err is a rejected request.
func IsInvalidParameter(err error) bool {
	return KindOf(err) == KindInvalidParameter
}

// IsCacheUnavailable reports whether err is a cache store fault.
func IsCacheUnavailable(err error) bool {
	return KindOf(err) == KindCacheUnavailable
}
