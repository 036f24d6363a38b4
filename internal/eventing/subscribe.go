package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solar-dashboard/internal/observability/metrics"
)

// Subscribe registers a named consumer. Handler failures are logged and
// returned to the publisher; consumer latency is recorded.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, logger *zap.Logger) {
	if bus == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bus.Subscribe(eventType, func(ctx context.Context, event any) error {
		start := time.Now()
		err := handler(ctx, event)
		metrics.ObserveConsumerLag(consumerName, time.Since(start))
		if err != nil {
			logger.Warn("eventing: consumer failed",
				zap.String("consumer", consumerName),
				zap.String("event_id", EventIDFromContext(ctx)),
				zap.Error(err))
		}
		return err
	})
}
