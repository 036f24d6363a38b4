package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names a canonical telemetry field.
type Field string

const (
	FieldTimestamp  Field = "timestamp"
	FieldDeviceID   Field = "device_id"
	FieldVoltage    Field = "voltage"
	FieldCurrent    Field = "current"
	FieldPower      Field = "power"
	FieldLightRaw   Field = "light_raw"
	FieldIrradiance Field = "irradiance"
)

// fieldAliases is the single field-resolution table. The first alias holding a
// non-null value wins.
var fieldAliases = map[Field][]string{
	FieldTimestamp:  {"timestamp", "time", "datetime", "ts"},
	FieldDeviceID:   {"device_id", "deviceId", "device"},
	FieldVoltage:    {"voltage", "voltage_v", "v", "V"},
	FieldCurrent:    {"current", "current_a", "i", "I"},
	FieldPower:      {"power", "power_w", "p", "powerW", "P"},
	FieldLightRaw:   {"light_raw", "lightRaw", "light"},
	FieldIrradiance: {"irradiance", "irr", "ghi"},
}

// Aliases returns the accepted spellings for a field in precedence order.
func Aliases(field Field) []string {
	return append([]string(nil), fieldAliases[field]...)
}

// Lookup resolves a field against a raw payload.
func Lookup(raw map[string]any, field Field) (any, bool) {
	for _, key := range fieldAliases[field] {
		value, ok := raw[key]
		if ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// Normalize maps an ingestion payload to a Reading. A missing timestamp resolves
// to now; a present but unparseable one is rejected.
func Normalize(raw map[string]any, now time.Time) (Reading, error) {
	if raw == nil {
		return Reading{}, fmt.Errorf("%w: missing payload", ErrValidation)
	}
	ts := now.UTC()
	if value, ok := Lookup(raw, FieldTimestamp); ok {
		parsed, valid := ParseTimestamp(value)
		if !valid {
			return Reading{}, fmt.Errorf("%w: invalid timestamp %v", ErrValidation, value)
		}
		ts = parsed
	}
	return build(raw, ts), nil
}

// NormalizeRecord maps a stored or imported record to a Reading. Records
// without a parseable timestamp are skipped.
func NormalizeRecord(raw map[string]any) (Reading, bool) {
	if raw == nil {
		return Reading{}, false
	}
	value, ok := Lookup(raw, FieldTimestamp)
	if !ok {
		return Reading{}, false
	}
	ts, valid := ParseTimestamp(value)
	if !valid {
		return Reading{}, false
	}
	return build(raw, ts), true
}

// NumberField resolves and coerces a numeric field, defaulting to 0.
func NumberField(raw map[string]any, field Field) float64 {
	value, ok := Lookup(raw, field)
	if !ok {
		return 0
	}
	return Number(value)
}

func build(raw map[string]any, ts time.Time) Reading {
	deviceID := DefaultDeviceID
	if value, ok := Lookup(raw, FieldDeviceID); ok {
		if s := strings.TrimSpace(fmt.Sprint(value)); s != "" {
			deviceID = s
		}
	}
	return Reading{
		Timestamp: ts,
		DeviceID:  deviceID,
		Voltage:   NumberField(raw, FieldVoltage),
		Current:   NumberField(raw, FieldCurrent),
		Power:     NumberField(raw, FieldPower),
		LightRaw:  NumberField(raw, FieldLightRaw),
	}
}

// Number coerces a raw value to a finite float64; anything else is 0.
func Number(value any) float64 {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if v {
			f = 1
		}
	default:
		return 0
	}
	return Finite(f)
}

// Finite maps NaN and infinities to 0.
func Finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	time.RFC1123Z,
	time.RFC1123,
}

// Naive layouts are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 strings, epoch seconds or milliseconds
// (numeric or string), and time.Time values. Results are UTC.
func ParseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		return parseTimestampString(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return fromEpoch(Number(v))
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

// fromEpoch accepts milliseconds or seconds.
func fromEpoch(value float64) (time.Time, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return time.Time{}, false
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(int64(value)).UTC(), true
	}
	sec, frac := math.Modf(value)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
}
