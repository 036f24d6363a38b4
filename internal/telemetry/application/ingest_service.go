package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solar-dashboard/internal/eventing"
	"solar-dashboard/internal/observability/metrics"
	"solar-dashboard/internal/telemetry/application/events"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// DefaultHistoryLimit bounds history reads when the caller gives no limit.
const DefaultHistoryLimit = 1000

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// IngestService normalizes raw payloads and writes them to the sequence store.
type IngestService struct {
	store        telemetry.SequenceStore
	publisher    EventPublisher
	clock        telemetry.Clock
	historyLimit int
	logger       *zap.Logger
}

// Option configures the ingest service.
type Option func(*IngestService)

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *IngestService) {
		s.publisher = publisher
	}
}

// WithClock overrides the clock used for missing timestamps.
func WithClock(clock telemetry.Clock) Option {
	return func(s *IngestService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithHistoryLimit sets the default history size.
func WithHistoryLimit(limit int) Option {
	return func(s *IngestService) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestService constructs an ingest service.
func NewIngestService(store telemetry.SequenceStore, opts ...Option) (*IngestService, error) {
	if store == nil {
		return nil, errors.New("ingest service: nil store")
	}
	s := &IngestService{
		store:        store,
		clock:        telemetry.SystemClock{},
		historyLimit: DefaultHistoryLimit,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest normalizes a payload, appends it to the log and overwrites the
// latest slot. The reading is only reported as ingested when both writes succeed.
func (s *IngestService) Ingest(ctx context.Context, raw map[string]any) (telemetry.Reading, error) {
	start := time.Now()
	reading, err := telemetry.Normalize(raw, s.clock.Now())
	if err != nil {
		metrics.IncIngestError("validation")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return telemetry.Reading{}, err
	}

	if err := s.store.Append(ctx, reading); err != nil {
		metrics.IncIngestError("append")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		s.logger.Error("telemetry ingest: append failed", zap.String("device_id", reading.DeviceID), zap.Error(err))
		return telemetry.Reading{}, storageError(err)
	}
	if err := s.store.SetLatest(ctx, reading); err != nil {
		metrics.IncIngestError("latest")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		s.logger.Error("telemetry ingest: set latest failed", zap.String("device_id", reading.DeviceID), zap.Error(err))
		return telemetry.Reading{}, storageError(err)
	}

	if s.publisher != nil {
		event := events.TelemetryReceived{
			EventID:    eventing.NewEventID(),
			DeviceID:   reading.DeviceID,
			Reading:    reading,
			OccurredAt: s.clock.Now().UTC(),
		}
		if err := s.publisher.Publish(eventing.WithEventID(ctx, event.EventID), event); err != nil {
			s.logger.Warn("telemetry ingest: publish failed", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	return reading, nil
}

// Latest returns the latest reading or nil when none exists.
func (s *IngestService) Latest(ctx context.Context) (*telemetry.Reading, error) {
	latest, err := s.store.ReadLatest(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return latest, nil
}

// History returns at most limit of the newest readings, oldest first. A
// non-positive limit falls back to the configured default.
func (s *IngestService) History(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	readings, err := s.store.ReadRange(ctx, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return readings, nil
}

// All returns the whole log.
func (s *IngestService) All(ctx context.Context) ([]telemetry.Reading, error) {
	readings, err := s.store.ReadRange(ctx, 0)
	if err != nil {
		return nil, storageError(err)
	}
	return readings, nil
}

func storageError(err error) error {
	if errors.Is(err, telemetry.ErrStorage) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", telemetry.ErrStorage, err)
}
