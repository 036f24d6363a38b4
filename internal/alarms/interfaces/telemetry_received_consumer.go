package interfaces

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	alarmapp "solar-dashboard/internal/alarms/application"
	"solar-dashboard/internal/eventing"
	telemetryevents "solar-dashboard/internal/telemetry/application/events"
)

const consumerName = "alarms.telemetry_received"

// TelemetryReceivedConsumer adapts telemetry events into the alarm service.
type TelemetryReceivedConsumer struct {
	app *alarmapp.Service
}

// NewTelemetryReceivedConsumer constructs a consumer.
func NewTelemetryReceivedConsumer(app *alarmapp.Service) (*TelemetryReceivedConsumer, error) {
	if app == nil {
		return nil, errors.New("alarms consumer: nil service")
	}
	return &TelemetryReceivedConsumer{app: app}, nil
}

// Consume handles a telemetry received event.
func (c *TelemetryReceivedConsumer) Consume(ctx context.Context, event telemetryevents.TelemetryReceived) error {
	return c.app.HandleTelemetryReceived(ctx, event)
}

// Subscribe attaches the consumer to the bus.
func (c *TelemetryReceivedConsumer) Subscribe(bus eventing.EventBus, logger *zap.Logger) {
	eventing.Subscribe(bus, eventing.EventTypeOf[telemetryevents.TelemetryReceived](), consumerName,
		func(ctx context.Context, event any) error {
			switch evt := event.(type) {
			case telemetryevents.TelemetryReceived:
				return c.Consume(ctx, evt)
			case *telemetryevents.TelemetryReceived:
				return c.Consume(ctx, *evt)
			default:
				return fmt.Errorf("alarms consumer: unexpected event %T", event)
			}
		}, logger)
}
