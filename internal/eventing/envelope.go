package eventing

import (
	"encoding/json"
	"reflect"
	"time"
)

// Envelope wraps an event payload with metadata for external transports.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// BuildEnvelope constructs an envelope from an event, taking EventID and
// OccurredAt from the event when it carries them.
func BuildEnvelope(event any) (Envelope, error) {
	if event == nil {
		return Envelope{}, ErrNilEvent
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	eventID := extractStringField(event, "EventID")
	if eventID == "" {
		eventID = NewEventID()
	}
	occurredAt := extractTimeField(event, "OccurredAt")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Envelope{
		EventID:       eventID,
		EventType:     EventType(event),
		OccurredAt:    occurredAt.UTC(),
		SchemaVersion: 1,
		Payload:       payload,
	}, nil
}

func extractStringField(event any, names ...string) string {
	v := reflect.ValueOf(event)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}
	for _, name := range names {
		field := v.FieldByName(name)
		if field.IsValid() && field.Kind() == reflect.String {
			return field.String()
		}
	}
	return ""
}

func extractTimeField(event any, name string) time.Time {
	v := reflect.ValueOf(event)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return time.Time{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return time.Time{}
	}
	field := v.FieldByName(name)
	if !field.IsValid() {
		return time.Time{}
	}
	if ts, ok := field.Interface().(time.Time); ok {
		return ts
	}
	return time.Time{}
}
