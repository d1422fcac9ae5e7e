package query

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Direction tells which side of the cursor row a page lies on.
type Direction string

const (
	After  Direction = "a"
	Before Direction = "b"
)

// Cursor is the decoded form of an opaque page token: the sort key and
// tie-breaking key of a boundary row.
type Cursor struct {
	Dir       Direction `msgpack:"d"`
	SortField string    `msgpack:"f"`
	SortOrder SortOrder `msgpack:"o"`
	Value     any       `msgpack:"v"`
	Key       any       `msgpack:"k"`
}

var ErrMalformedCursor = errors.New("malformed cursor")

// EncodeCursor serializes c as base64url(msgpack(c)).
func EncodeCursor(c Cursor) (string, error) {
	data, err := msgpack.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	var c Cursor
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	switch c.Dir {
	case After, Before:
	default:
		return Cursor{}, fmt.Errorf("%w: unknown direction %q", ErrMalformedCursor, c.Dir)
	}
	if c.SortField == "" {
		return Cursor{}, fmt.Errorf("%w: missing sort field", ErrMalformedCursor)
	}

	// msgpack shrinks integers on the wire; restore the canonical widths
	c.Value = Widen(c.Value)
	c.Key = Widen(c.Key)
	return c, nil
}

// CursorFor builds the cursor pointing at row under params' ordering.
func CursorFor(params Params, keyField string, row Record, dir Direction) Cursor {
	return Cursor{
		Dir:       dir,
		SortField: params.SortField,
		SortOrder: params.SortOrder,
		Value:     Widen(row.Get(params.SortField)),
		Key:       Widen(row.Get(keyField)),
	}
}
