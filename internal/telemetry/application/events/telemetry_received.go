package events

import (
	"time"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

// TelemetryReceived is raised after a reading is durably ingested.
type TelemetryReceived struct {
	EventID    string            `json:"event_id"`
	DeviceID   string            `json:"device_id"`
	Reading    telemetry.Reading `json:"reading"`
	OccurredAt time.Time         `json:"occurred_at"`
}
