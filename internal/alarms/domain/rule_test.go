package alarms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

func TestRuleValidate(t *testing.T) {
	valid := AlarmRule{ID: "r1", Name: "High voltage", Field: FieldVoltage, Operator: OperatorGreater, Threshold: 14}
	assert.NoError(t, valid.Validate())

	cases := map[string]AlarmRule{
		"empty id":   {Name: "x", Field: FieldPower, Operator: OperatorLess},
		"bad field":  {ID: "r", Name: "x", Field: "temperature", Operator: OperatorLess},
		"bad op":     {ID: "r", Name: "x", Field: FieldPower, Operator: "=="},
		"hysteresis": {ID: "r", Name: "x", Field: FieldPower, Operator: OperatorLess, Hysteresis: -1},
		"empty name": {ID: "r", Field: FieldPower, Operator: OperatorLess},
	}
	for name, rule := range cases {
		err := rule.Validate()
		assert.True(t, errors.Is(err, ErrInvalidRule), name)
	}
}

func TestRuleHysteresis(t *testing.T) {
	high := AlarmRule{Operator: OperatorGreater, Threshold: 10, Hysteresis: 1}
	assert.True(t, high.Triggers(10.5))
	assert.False(t, high.Triggers(10))
	assert.False(t, high.Clears(9.5))
	assert.True(t, high.Clears(9))

	low := AlarmRule{Operator: OperatorLessOrEqual, Threshold: 3, Hysteresis: 0.5}
	assert.True(t, low.Triggers(3))
	assert.False(t, low.Clears(3.2))
	assert.True(t, low.Clears(3.5))
}

func TestFieldValueOf(t *testing.T) {
	reading := telemetry.Reading{Voltage: 1, Current: 2, Power: 3, LightRaw: 4}
	assert.Equal(t, 1.0, FieldVoltage.ValueOf(reading))
	assert.Equal(t, 2.0, FieldCurrent.ValueOf(reading))
	assert.Equal(t, 3.0, FieldPower.ValueOf(reading))
	assert.Equal(t, 4.0, FieldLight.ValueOf(reading))
	assert.Zero(t, Field("other").ValueOf(reading))
}
