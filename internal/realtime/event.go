// Package realtime fans out row-change events from the persistence store to
// in-process subscribers.
//
// Events enter through a Hub, either published directly by in-memory
// repositories or bridged from Postgres LISTEN/NOTIFY, Redis pub/sub or MQTT.
// Consumers subscribe to a table with an optional equality filter and receive
// events on a channel until they close the subscription or cancel its context.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// AllEvents subscribes to every change type.
var AllEvents = []EventType{Insert, Update, Delete}

// Tables the core subscribes to.
const (
	TableUserLocations = "user_locations"
	TableSafetyAlerts  = "safety_alerts"
	TableProfiles      = "profiles"
	TableSOSIncidents  = "sos_incidents"
)

// ErrMalformedEvent is returned when an event cannot be decoded.
var ErrMalformedEvent = errors.New("malformed change event")

// ChangeEvent is one row change. New is empty for deletes, Old may be empty
// for inserts and for stores that do not send the previous row.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// Row returns the row the event is about: New, or Old for deletes.
func (e ChangeEvent) Row() json.RawMessage {
	if len(e.New) > 0 {
		return e.New
	}
	return e.Old
}

// Decode unmarshals Row into v.
func (e ChangeEvent) Decode(v any) error {
	row := e.Row()
	if len(row) == 0 {
		return fmt.Errorf("%w: %s event on %s has no row", ErrMalformedEvent, e.Type, e.Table)
	}
	if err := json.Unmarshal(row, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// ParseEvent decodes a JSON-encoded ChangeEvent and checks its required fields.
func ParseEvent(payload []byte) (ChangeEvent, error) {
	var evt ChangeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Table == "" {
		return ChangeEvent{}, fmt.Errorf("%w: missing table", ErrMalformedEvent)
	}
	switch evt.Type {
	case Insert, Update, Delete:
	default:
		return ChangeEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, evt.Type)
	}
	return evt, nil
}

// NewEvent builds an event from a row value, JSON-encoding it.
func NewEvent(table string, typ EventType, row any, at time.Time) (ChangeEvent, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	evt := ChangeEvent{Table: table, Type: typ, CommitTime: at}
	if typ == Delete {
		evt.Old = data
	} else {
		evt.New = data
	}
	return evt, nil
}

// Filter restricts a subscription to rows whose Column equals Value
// (case-insensitively). The zero Filter matches every row.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Column == ""
}

// Matches reports whether the event's row satisfies the filter. Either the new
// or the old row may match, so an update moving a row out of scope is still
// delivered.
func (f Filter) Matches(evt ChangeEvent) bool {
	if f.IsZero() {
		return true
	}
	return f.matchesRow(evt.New) || f.matchesRow(evt.Old)
}

func (f Filter) matchesRow(row json.RawMessage) bool {
	if len(row) == 0 {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	v, ok := fields[f.Column]
	if !ok || v == nil {
		return false
	}
	var s string
	switch tv := v.(type) {
	case string:
		s = tv
	default:
		s = fmt.Sprint(tv)
	}
	return strings.EqualFold(s, f.Value)
}
