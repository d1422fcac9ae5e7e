package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsSentinel(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		sentinel error
		retry    bool
	}{
		{"invalid parameter", InvalidParameter("Normalize", "page_size", cause), ErrInvalidParameter, false},
		{"upstream", UpstreamQuery("Execute", cause), ErrUpstreamQuery, true},
		{"cache", CacheUnavailable("Get", cause), ErrCacheUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.ErrorIs(t, tt.err, cause)
			assert.Equal(t, tt.retry, IsRetryable(tt.err))

			wrapped := fmt.Errorf("fetch page: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.retry, IsRetryable(wrapped))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := InvalidParameterf("Normalize", "sort_order", "unsupported value %q", "sideways")
	assert.Equal(t, `invalid_parameter: Normalize [field=sort_order]: unsupported value "sideways"`, err.Error())

	plain := New(KindCacheUnavailable, "", nil)
	assert.Equal(t, "cache_unavailable", plain.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindUpstreamQuery, KindOf(UpstreamQuery("op", nil)))
	assert.True(t, IsInvalidParameter(InvalidParameter("op", "", nil)))
	assert.True(t, IsCacheUnavailable(CacheUnavailable("op", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestErrorIsByKindAndOp(t *testing.T) {
	err := UpstreamQuery("Execute", errors.New("boom"))
	assert.True(t, errors.Is(err, &Error{Kind: KindUpstreamQuery}))
	assert.True(t, errors.Is(err, &Error{Kind: KindUpstreamQuery, Op: "Execute"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindUpstreamQuery, Op: "Count"}))
	assert.False(t, errors.Is(err, ErrInvalidParameter))
}
