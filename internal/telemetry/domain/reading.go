package telemetry

import (
	"context"
	"time"
)

// DefaultDeviceID is used when a payload does not name its device.
const DefaultDeviceID = "esp32-01"

// Reading is a normalized telemetry sample. Numeric fields are always finite.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	LightRaw  float64   `json:"light_raw"`
}

// SequenceStore is an append-only ordered store of readings plus a single latest-value slot.
type SequenceStore interface {
	Append(ctx context.Context, reading Reading) error
	SetLatest(ctx context.Context, reading Reading) error
	// ReadLatest returns nil when nothing has been ingested yet.
	ReadLatest(ctx context.Context) (*Reading, error)
	// ReadRange returns at most limit of the most recent readings, oldest first.
	// A limit <= 0 returns the whole log.
	ReadRange(ctx context.Context, limit int) ([]Reading, error)
}

// Versioned is implemented by stores that can report a token which changes on
// every Append, without reading the log.
type Versioned interface {
	Version(ctx context.Context) (string, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
