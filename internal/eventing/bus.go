package eventing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"solar-dashboard/internal/observability/metrics"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventing: nil event")
	// ErrInvalidEventType is returned when the event type cannot be determined.
	ErrInvalidEventType = errors.New("eventing: invalid event type")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("eventing: handler panic")
)

// InMemoryBus dispatches ingest events synchronously to the alarm consumer
// and the Kafka forwarder. Every handler runs even when an earlier one fails.
type InMemoryBus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// BusOption configures the bus.
type BusOption func(*InMemoryBus)

// WithBusLogger sets the logger used for unrouted events and handler failures.
func WithBusLogger(logger *zap.Logger) BusOption {
	return func(b *InMemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	b := &InMemoryBus{
		logger:   zap.NewNop(),
		handlers: make(map[string][]EventHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish runs every handler subscribed to the event's type and joins their
// errors. A panicking handler is reported as ErrHandlerPanic.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		metrics.IncEventPublished(eventType, metrics.EventUnrouted)
		b.logger.Debug("eventing: no subscribers", zap.String("event_type", eventType))
		return nil
	}

	var errs []error
	for i, handler := range handlers {
		if err := invoke(ctx, handler, event); err != nil {
			b.logger.Warn("eventing: handler failed",
				zap.String("event_type", eventType),
				zap.String("event_id", EventIDFromContext(ctx)),
				zap.Int("handler", i),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		metrics.IncEventPublished(eventType, metrics.EventFailed)
		return errors.Join(errs...)
	}
	metrics.IncEventPublished(eventType, metrics.EventDelivered)
	return nil
}

func invoke(ctx context.Context, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for an event type. Empty types and nil
// handlers are ignored.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Subscribers reports how many handlers listen for eventType.
func (b *InMemoryBus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// EventType names an event by its dereferenced Go type, e.g.
// "events.TelemetryReceived".
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf is EventType for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
