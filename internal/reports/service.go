package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/analytics/domain/statistic"
	"solar-dashboard/internal/observability/metrics"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// DefaultSummaryWindow is the number of recent readings a summary covers.
const DefaultSummaryWindow = 500

// ErrMissingRecipient is returned when a report has nowhere to go.
var ErrMissingRecipient = errors.New("reports: missing recipient")

// WindowReader returns the newest readings, oldest first. A limit <= 0 reads the whole log.
type WindowReader interface {
	Window(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

// LatestReader returns the latest-value slot.
type LatestReader interface {
	Latest(ctx context.Context) (*telemetry.Reading, error)
}

// Sender delivers a rendered report.
type Sender interface {
	Send(ctx context.Context, msg alarms.Message) error
}

// Report is a point-in-time telemetry summary.
type Report struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Latest      *telemetry.Reading      `json:"latest,omitempty"`
	Summary     statistic.Summary       `json:"summary"`
	DailyEnergy []statistic.DailyEnergy `json:"daily_energy"`
	TotalKWh    float64                 `json:"total_kwh"`
}

// Service builds, renders and sends reports.
type Service struct {
	readings WindowReader
	latest   LatestReader
	sender   Sender
	window   int
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures the report service.
type Option func(*Service)

// WithSender enables emailing reports.
func WithSender(sender Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithLatestReader overrides where the latest reading comes from.
func WithLatestReader(latest LatestReader) Option {
	return func(s *Service) {
		s.latest = latest
	}
}

// WithSummaryWindow overrides the summary window.
func WithSummaryWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a report service.
func NewService(readings WindowReader, opts ...Option) (*Service, error) {
	if readings == nil {
		return nil, errors.New("reports: nil reading source")
	}
	s := &Service{
		readings: readings,
		window:   DefaultSummaryWindow,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Build summarizes the newest readings and integrates daily energy over the
// whole log.
func (s *Service) Build(ctx context.Context) (Report, error) {
	all, err := s.readings.Window(ctx, 0)
	if err != nil {
		return Report{}, err
	}
	recent := all
	if len(recent) > s.window {
		recent = recent[len(recent)-s.window:]
	}
	report := Report{
		GeneratedAt: s.now().UTC(),
		Summary:     statistic.Summarize(recent),
		DailyEnergy: statistic.DailyEnergyFrom(all),
		TotalKWh:    statistic.TotalKWh(all),
	}
	report.Latest = report.Summary.Latest
	if s.latest != nil {
		latest, err := s.latest.Latest(ctx)
		if err != nil {
			return Report{}, err
		}
		if latest != nil {
			report.Latest = latest
		}
	}
	return report, nil
}

// Send emails the summary report to recipient.
func (s *Service) Send(ctx context.Context, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrMissingRecipient
	}
	if s.sender == nil {
		return errors.New("reports: email not configured")
	}
	err := s.send(ctx, recipient)
	metrics.IncReport(metrics.ResultOf(err))
	if err != nil {
		s.logger.Error("reports: send failed", zap.Error(err))
		return err
	}
	s.logger.Info("reports: sent summary report")
	return nil
}

func (s *Service) send(ctx context.Context, recipient string) error {
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	html, err := RenderHTML(report)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, alarms.Message{
		To:      []string{recipient},
		Subject: "Solar Dashboard Summary Report - " + report.GeneratedAt.Format("2006-01-02"),
		Text:    RenderText(report),
		HTML:    html,
	})
}
