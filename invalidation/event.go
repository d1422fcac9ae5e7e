package invalidation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is what happened to an entity.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// ParseKind accepts the engine's kind names and the realtime operation names
// INSERT, UPDATE and DELETE, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create", "insert":
		return Created, nil
	case "updated", "update":
		return Updated, nil
	case "deleted", "delete":
		return Deleted, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event reports that an entity of EntityType changed.
type Event struct {
	ID         string    `json:"id,omitempty"`
	EntityType string    `json:"entity_type"`
	Kind       Kind      `json:"event"`
	EntityID   string    `json:"entity_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

var ErrMalformedPayload = errors.New("malformed notification payload")

type payload struct {
	EntityType string          `json:"entity_type"`
	Event      string          `json:"event"`
	EntityID   json.RawMessage `json:"entity_id"`

	// realtime change feed shape
	Table     string                     `json:"table"`
	Type      string                     `json:"type"`
	Record    map[string]json.RawMessage `json:"record"`
	OldRecord map[string]json.RawMessage `json:"old_record"`
}

// DecodePayload parses a JSON notification. Two shapes are accepted:
//
//	{"entity_type": "initiative", "event": "updated", "entity_id": 42}
//	{"table": "initiative", "type": "UPDATE", "record": {"id": 42}}
func DecodePayload(data []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := Event{EntityType: p.EntityType, EntityID: rawID(p.EntityID)}
	kind := p.Event

	if ev.EntityType == "" {
		ev.EntityType = p.Table
		kind = p.Type
		ev.EntityID = rawID(p.Record["id"])
		if ev.EntityID == "" {
			ev.EntityID = rawID(p.OldRecord["id"])
		}
	}

	if ev.EntityType == "" {
		return Event{}, fmt.Errorf("%w: missing entity type", ErrMalformedPayload)
	}

	k, err := ParseKind(kind)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ev.Kind = k
	return ev, nil
}

// DecodeNotification interprets a message received on channel. JSON payloads go
// through DecodePayload; a bare word names the changed entity type; an empty payload
// means the channel itself names it.
func DecodeNotification(channel string, data []byte) (Event, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		if channel == "" {
			return Event{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
		}
		return Event{EntityType: channel, Kind: Updated}, nil
	case data[0] == '{':
		return DecodePayload(data)
	}
	return Event{EntityType: string(data), Kind: Updated}, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
