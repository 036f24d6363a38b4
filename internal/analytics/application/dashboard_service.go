package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solar-dashboard/internal/analytics/domain/statistic"
	"solar-dashboard/internal/observability/metrics"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// DefaultWindow is the number of recent readings aggregated when the caller
// gives no limit.
const DefaultWindow = 1000

// ReadingSource reads recent readings, oldest first.
type ReadingSource interface {
	ReadRange(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

// MinuteView is the minute table with per-bucket deltas.
type MinuteView struct {
	Buckets []statistic.MinuteBucket `json:"buckets"`
	Deltas  []statistic.MinuteDelta  `json:"deltas"`
}

// DashboardService materializes a reading window and runs the aggregators over it.
type DashboardService struct {
	source        ReadingSource
	defaultWindow int
	logger        *zap.Logger
}

// DashboardOption configures the dashboard service.
type DashboardOption func(*DashboardService)

// WithDefaultWindow sets the reading window used when no limit is given.
func WithDefaultWindow(n int) DashboardOption {
	return func(s *DashboardService) {
		if n > 0 {
			s.defaultWindow = n
		}
	}
}

// WithDashboardLogger sets the logger.
func WithDashboardLogger(logger *zap.Logger) DashboardOption {
	return func(s *DashboardService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDashboardService constructs a dashboard service.
func NewDashboardService(source ReadingSource, opts ...DashboardOption) (*DashboardService, error) {
	if source == nil {
		return nil, errors.New("dashboard service: nil reading source")
	}
	s := &DashboardService{source: source, defaultWindow: DefaultWindow, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Minutes aggregates the window by minute. tail > 0 keeps only the newest
// tail buckets; their deltas are still computed against the full sequence.
func (s *DashboardService) Minutes(ctx context.Context, limit, tail int) (MinuteView, error) {
	readings, err := s.window(ctx, limit)
	if err != nil {
		return MinuteView{}, err
	}
	start := time.Now()
	buckets := statistic.AggregateByMinute(readings)
	deltas := statistic.MinuteDeltas(buckets)
	metrics.ObserveAggregation("minute", metrics.ResultSuccess, time.Since(start))
	if tail > 0 && len(buckets) > tail {
		buckets = buckets[len(buckets)-tail:]
		deltas = deltas[len(deltas)-tail:]
	}
	return MinuteView{Buckets: buckets, Deltas: deltas}, nil
}

// DailyEnergy integrates the window into per-day kWh.
func (s *DashboardService) DailyEnergy(ctx context.Context, limit int) ([]statistic.DailyEnergy, error) {
	readings, err := s.window(ctx, limit)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out := statistic.DailyEnergyFrom(readings)
	metrics.ObserveAggregation("daily_energy", metrics.ResultSuccess, time.Since(start))
	return out, nil
}

// Hourly computes the 24-entry hour-of-day panel.
func (s *DashboardService) Hourly(ctx context.Context, limit int) ([]statistic.HourlyAverage, error) {
	readings, err := s.window(ctx, limit)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out := statistic.HourlyAverages(readings)
	metrics.ObserveAggregation("hourly", metrics.ResultSuccess, time.Since(start))
	return out, nil
}

// Summary computes field statistics over the window.
func (s *DashboardService) Summary(ctx context.Context, limit int) (statistic.Summary, error) {
	readings, err := s.window(ctx, limit)
	if err != nil {
		return statistic.Summary{}, err
	}
	return statistic.Summarize(readings), nil
}

// Window returns the readings aggregated for a limit.
func (s *DashboardService) Window(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	return s.window(ctx, limit)
}

func (s *DashboardService) window(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if limit <= 0 {
		limit = s.defaultWindow
	}
	readings, err := s.source.ReadRange(ctx, limit)
	if err != nil {
		s.logger.Error("dashboard: read range failed", zap.Int("limit", limit), zap.Error(err))
		if errors.Is(err, telemetry.ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", telemetry.ErrStorage, err)
	}
	return readings, nil
}
