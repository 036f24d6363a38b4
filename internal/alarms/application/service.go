package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/observability/metrics"
	telemetryevents "solar-dashboard/internal/telemetry/application/events"
)

// AlarmNotifier publishes alarm lifecycle events.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string       `json:"type"`
	Alarm alarms.Alarm `json:"alarm"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service handles alarm evaluation and state transitions.
type Service struct {
	rules    alarms.RuleRepository
	alarms   alarms.AlarmRepository
	notifier AlarmNotifier
	clock    Clock
	logger   *zap.Logger
}

// ServiceOption customizes the alarm service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlarmNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an alarm service.
func NewService(rules alarms.RuleRepository, alarmsRepo alarms.AlarmRepository, opts ...ServiceOption) (*Service, error) {
	if rules == nil || alarmsRepo == nil {
		return nil, errors.New("alarms: nil repository")
	}
	service := &Service{
		rules:  rules,
		alarms: alarmsRepo,
		clock:  systemClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleTelemetryReceived evaluates a reading against every enabled rule.
func (s *Service) HandleTelemetryReceived(ctx context.Context, evt telemetryevents.TelemetryReceived) error {
	if s == nil {
		return errors.New("alarms: nil service")
	}
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return err
	}
	deviceID := evt.DeviceID
	if deviceID == "" {
		deviceID = evt.Reading.DeviceID
	}
	at := evt.Reading.Timestamp
	if at.IsZero() {
		at = evt.OccurredAt
	}
	var errs []error
	for _, rule := range rules {
		value := rule.Field.ValueOf(evt.Reading)
		if err := s.evaluateRule(ctx, rule, deviceID, value, atOrNow(at, s.clock)); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
		}
	}
	return errors.Join(errs...)
}

// AckAlarm acknowledges an alarm.
func (s *Service) AckAlarm(ctx context.Context, id string) (*alarms.Alarm, error) {
	alarm, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm.Status != alarms.StatusActive {
		return alarm, nil
	}
	ackedAt := s.clock.Now().UTC()
	alarm.Status = alarms.StatusAcknowledged
	alarm.AckedAt = &ackedAt
	alarm.UpdatedAt = ackedAt
	if err := s.alarms.Update(ctx, alarm); err != nil {
		return nil, err
	}
	s.notify(ctx, alarms.EventAcknowledged, *alarm)
	return alarm, nil
}

// ClearAlarm clears an alarm manually.
func (s *Service) ClearAlarm(ctx context.Context, id string) (*alarms.Alarm, error) {
	alarm, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm.Status == alarms.StatusCleared {
		return alarm, nil
	}
	s.markCleared(alarm, alarm.LastValue, s.clock.Now().UTC())
	if err := s.alarms.Update(ctx, alarm); err != nil {
		return nil, err
	}
	s.notify(ctx, alarms.EventCleared, *alarm)
	return alarm, nil
}

// GetAlarm returns an alarm by id.
func (s *Service) GetAlarm(ctx context.Context, id string) (*alarms.Alarm, error) {
	return s.load(ctx, id)
}

// ListAlarms returns alarms newest first.
func (s *Service) ListAlarms(ctx context.Context, filter alarms.ListFilter) ([]alarms.Alarm, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	return s.alarms.List(ctx, filter)
}

func (s *Service) load(ctx context.Context, id string) (*alarms.Alarm, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	if id == "" {
		return nil, errors.New("alarms: alarm id required")
	}
	alarm, err := s.alarms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, alarms.ErrNotFound
	}
	return alarm, nil
}

func (s *Service) evaluateRule(ctx context.Context, rule alarms.AlarmRule, deviceID string, value float64, at time.Time) error {
	open, err := s.alarms.FindOpen(ctx, rule.ID, deviceID)
	if err != nil {
		return err
	}

	if open != nil {
		if rule.Clears(value) {
			s.markCleared(open, value, at)
			if err := s.alarms.Update(ctx, open); err != nil {
				return err
			}
			s.notify(ctx, alarms.EventCleared, *open)
			return nil
		}
		open.LastValue = value
		open.UpdatedAt = at
		return s.alarms.Update(ctx, open)
	}

	if !rule.Triggers(value) {
		return nil
	}
	now := s.clock.Now().UTC()
	alarm := &alarms.Alarm{
		ID:        "alarm-" + uuid.NewString(),
		RuleID:    rule.ID,
		DeviceID:  deviceID,
		Field:     rule.Field,
		Severity:  rule.Severity,
		Status:    alarms.StatusActive,
		StartAt:   at,
		LastValue: value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.alarms.Create(ctx, alarm); err != nil {
		return err
	}
	s.logger.Info("alarms: raised",
		zap.String("alarm_id", alarm.ID),
		zap.String("rule_id", rule.ID),
		zap.String("device_id", deviceID),
		zap.Float64("value", value))
	s.notify(ctx, alarms.EventActive, *alarm)
	return nil
}

func (s *Service) markCleared(alarm *alarms.Alarm, value float64, at time.Time) {
	alarm.Status = alarms.StatusCleared
	alarm.ClearedAt = &at
	alarm.LastValue = value
	alarm.UpdatedAt = at
}

func (s *Service) notify(ctx context.Context, eventType string, alarm alarms.Alarm) {
	metrics.IncAlarmEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlarmEvent{Type: eventType, Alarm: alarm})
}

func atOrNow(value time.Time, clock Clock) time.Time {
	if value.IsZero() {
		return clock.Now().UTC()
	}
	return value.UTC()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
