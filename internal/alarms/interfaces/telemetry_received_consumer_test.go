package interfaces

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarmapp "solar-dashboard/internal/alarms/application"
	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/alarms/infrastructure/memory"
	"solar-dashboard/internal/eventing"
	telemetryevents "solar-dashboard/internal/telemetry/application/events"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

func TestConsumerRaisesAlarmFromBus(t *testing.T) {
	rules, err := memory.NewRuleRepository([]alarms.AlarmRule{{
		ID: "power-high", Name: "Power high", Field: alarms.FieldPower,
		Operator: alarms.OperatorGreaterOrEqual, Threshold: 5, Enabled: true,
	}})
	require.NoError(t, err)
	repo := memory.NewAlarmRepository()
	service, err := alarmapp.NewService(rules, repo)
	require.NoError(t, err)
	consumer, err := NewTelemetryReceivedConsumer(service)
	require.NoError(t, err)

	bus := eventing.NewInMemoryBus()
	consumer.Subscribe(bus, nil)

	reading := telemetry.Reading{Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), DeviceID: "sim-01", Power: 6}
	require.NoError(t, bus.Publish(context.Background(), telemetryevents.TelemetryReceived{EventID: "e1", DeviceID: "sim-01", Reading: reading}))
	require.NoError(t, bus.Publish(context.Background(), &telemetryevents.TelemetryReceived{EventID: "e2", DeviceID: "sim-01", Reading: reading}))

	list, err := repo.List(context.Background(), alarms.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sim-01", list[0].DeviceID)
	assert.Equal(t, 6.0, list[0].LastValue)

	_, err = NewTelemetryReceivedConsumer(nil)
	assert.Error(t, err)
}
