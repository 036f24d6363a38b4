package alarms

import (
	"context"
	"time"
)

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusCleared      = "cleared"
)

// Lifecycle events emitted to notifiers.
const (
	EventActive       = "active"
	EventAcknowledged = "acknowledged"
	EventCleared      = "cleared"
	EventEscalated    = "escalated"
)

// Alarm represents an alarm instance raised from a rule evaluation.
type Alarm struct {
	ID        string     `json:"id"`
	RuleID    string     `json:"rule_id"`
	DeviceID  string     `json:"device_id"`
	Field     Field      `json:"field"`
	Severity  string     `json:"severity"`
	Status    string     `json:"status"`
	StartAt   time.Time  `json:"start_at"`
	LastValue float64    `json:"last_value"`
	AckedAt   *time.Time `json:"acked_at,omitempty"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Open reports whether the alarm still needs clearing.
func (a Alarm) Open() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}

// ListFilter narrows alarm listings. Zero values match everything.
type ListFilter struct {
	Status   string
	DeviceID string
	Limit    int
}

// AlarmRepository persists alarm instances.
type AlarmRepository interface {
	Create(ctx context.Context, alarm *Alarm) error
	// GetByID returns nil when the alarm does not exist.
	GetByID(ctx context.Context, id string) (*Alarm, error)
	// FindOpen returns the open alarm for a rule and device, or nil.
	FindOpen(ctx context.Context, ruleID, deviceID string) (*Alarm, error)
	Update(ctx context.Context, alarm *Alarm) error
	// List returns alarms newest first.
	List(ctx context.Context, filter ListFilter) ([]Alarm, error)
}

// Message is a rendered notification ready for delivery.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}
