package alarms

import (
	"context"
	"fmt"
	"strings"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

type Operator string

const (
	OperatorGreater        Operator = ">"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
)

// Field names the reading value a rule watches.
type Field string

const (
	FieldVoltage Field = "voltage"
	FieldCurrent Field = "current"
	FieldPower   Field = "power"
	FieldLight   Field = "light"
)

// AlarmRule defines a threshold-based alarm rule.
type AlarmRule struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Field      Field    `json:"field" yaml:"field"`
	Operator   Operator `json:"operator" yaml:"operator"`
	Threshold  float64  `json:"threshold" yaml:"threshold"`
	Hysteresis float64  `json:"hysteresis" yaml:"hysteresis"`
	Severity   string   `json:"severity" yaml:"severity"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
}

// RuleRepository loads alarm rules.
type RuleRepository interface {
	ListEnabled(ctx context.Context) ([]AlarmRule, error)
	// GetByID returns nil when the rule does not exist.
	GetByID(ctx context.Context, id string) (*AlarmRule, error)
}

// Validate checks rule invariants.
func (r AlarmRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if !r.Field.Valid() {
		return fmt.Errorf("%w: invalid field %q", ErrInvalidRule, r.Field)
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("%w: invalid operator %q", ErrInvalidRule, r.Operator)
	}
	if r.Hysteresis < 0 {
		return fmt.Errorf("%w: negative hysteresis", ErrInvalidRule)
	}
	return nil
}

// Valid returns true when operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual:
		return true
	default:
		return false
	}
}

// Valid returns true when the field is supported.
func (f Field) Valid() bool {
	switch f {
	case FieldVoltage, FieldCurrent, FieldPower, FieldLight:
		return true
	default:
		return false
	}
}

// ValueOf extracts the watched value from a reading.
func (f Field) ValueOf(reading telemetry.Reading) float64 {
	switch f {
	case FieldVoltage:
		return reading.Voltage
	case FieldCurrent:
		return reading.Current
	case FieldPower:
		return reading.Power
	case FieldLight:
		return reading.LightRaw
	default:
		return 0
	}
}

// Triggers reports whether value breaches the threshold.
func (r AlarmRule) Triggers(value float64) bool {
	switch r.Operator {
	case OperatorGreater:
		return value > r.Threshold
	case OperatorGreaterOrEqual:
		return value >= r.Threshold
	case OperatorLess:
		return value < r.Threshold
	case OperatorLessOrEqual:
		return value <= r.Threshold
	default:
		return false
	}
}

// Clears reports whether value has moved back past the hysteresis band.
func (r AlarmRule) Clears(value float64) bool {
	h := r.Hysteresis
	if h < 0 {
		h = 0
	}
	switch r.Operator {
	case OperatorGreater, OperatorGreaterOrEqual:
		return value <= r.Threshold-h
	case OperatorLess, OperatorLessOrEqual:
		return value >= r.Threshold+h
	default:
		return false
	}
}
