package query

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_EncodeDecode(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []Cursor{
		{Dir: After, SortField: "id", SortOrder: Asc, Value: int64(42), Key: int64(42)},
		{Dir: Before, SortField: "name", SortOrder: Desc, Value: "Zeta", Key: int64(7)},
		{Dir: After, SortField: "created_at", SortOrder: Asc, Value: at, Key: "a-1"},
		{Dir: After, SortField: "score", SortOrder: Desc, Value: 1.5, Key: int64(3)},
		{Dir: After, SortField: "parent_id", SortOrder: Asc, Value: nil, Key: int64(3)},
	}

	for _, c := range tests {
		token, err := EncodeCursor(c)
		require.NoError(t, err)
		assert.NotContains(t, token, "=")

		got, err := DecodeCursor(token)
		require.NoError(t, err)
		assert.Equal(t, c.Dir, got.Dir)
		assert.Equal(t, c.SortField, got.SortField)
		assert.Equal(t, c.SortOrder, got.SortOrder)
		assert.Equal(t, 0, Compare(c.Value, got.Value), "value %v", c.Value)
		assert.Equal(t, 0, Compare(c.Key, got.Key), "key %v", c.Key)
	}
}

func TestCursor_SmallIntegersWiden(t *testing.T) {
	token, err := EncodeCursor(Cursor{Dir: After, SortField: "id", SortOrder: Asc, Value: 3, Key: 3})
	require.NoError(t, err)

	got, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.IsType(t, int64(0), got.Value)
	assert.IsType(t, int64(0), got.Key)
}

func TestCursor_Malformed(t *testing.T) {
	tests := []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("plain text")),
	}
	for _, token := range tests {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrMalformedCursor, token)
	}

	token, err := EncodeCursor(Cursor{Dir: "x", SortField: "id"})
	require.NoError(t, err)
	_, err = DecodeCursor(token)
	assert.ErrorIs(t, err, ErrMalformedCursor)

	token, err = EncodeCursor(Cursor{Dir: After})
	require.NoError(t, err)
	_, err = DecodeCursor(token)
	assert.ErrorIs(t, err, ErrMalformedCursor)
}

func TestCursorFor(t *testing.T) {
	params := Params{SortField: "name", SortOrder: Desc}
	row := Record{"id": 9, "name": "Ada"}

	c := CursorFor(params, "id", row, Before)
	assert.Equal(t, Before, c.Dir)
	assert.Equal(t, "Ada", c.Value)
	assert.Equal(t, int64(9), c.Key)
}

func TestRequestOrder(t *testing.T) {
	req := Request{Params: Params{SortOrder: Desc}}
	assert.Equal(t, Desc, req.Order())

	req.Reverse = true
	assert.Equal(t, Asc, req.Order())

	assert.Equal(t, Asc, Request{}.Order())
}
