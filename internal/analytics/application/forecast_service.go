package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"solar-dashboard/internal/analytics/domain/statistic"
	"solar-dashboard/internal/observability/metrics"
)

// ProfileSource supplies forecast samples and a change-detection signature.
type ProfileSource interface {
	// Signature changes whenever Load would return different data.
	Signature(ctx context.Context) (string, error)
	Load(ctx context.Context) ([]statistic.ProfileSample, error)
}

// ForecastService caches the parsed profile source keyed by its signature.
type ForecastService struct {
	source        ProfileSource
	minDaySamples int
	logger        *zap.Logger

	mu        sync.Mutex
	signature string
	samples   []statistic.ProfileSample
	cached    bool
}

// ForecastOption configures the forecast service.
type ForecastOption func(*ForecastService)

// WithMinDaySamples sets the full-day threshold for source day selection.
func WithMinDaySamples(n int) ForecastOption {
	return func(s *ForecastService) {
		if n > 0 {
			s.minDaySamples = n
		}
	}
}

// WithForecastLogger sets the logger.
func WithForecastLogger(logger *zap.Logger) ForecastOption {
	return func(s *ForecastService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewForecastService constructs a forecast service.
func NewForecastService(source ProfileSource, opts ...ForecastOption) (*ForecastService, error) {
	if source == nil {
		return nil, errors.New("forecast service: nil profile source")
	}
	s := &ForecastService{
		source:        source,
		minDaySamples: statistic.DefaultMinDaySamples,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Forecast builds the next-day profile-replay forecast. refresh drops the
// cache and reloads the source unconditionally.
func (s *ForecastService) Forecast(ctx context.Context, refresh bool) (statistic.Forecast, error) {
	samples, err := s.load(ctx, refresh)
	if err != nil {
		return statistic.Forecast{}, err
	}
	start := time.Now()
	fc, err := statistic.ForecastFromProfile(samples, statistic.WithMinDaySamples(s.minDaySamples))
	metrics.ObserveAggregation("forecast", metrics.ResultOf(err), time.Since(start))
	return fc, err
}

// Invalidate drops the cached source.
func (s *ForecastService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

func (s *ForecastService) invalidateLocked() {
	s.cached = false
	s.signature = ""
	s.samples = nil
}

// load holds the lock across the reload: one writer invalidates and
// repopulates, and a stale signature is always treated as a miss.
func (s *ForecastService) load(ctx context.Context, refresh bool) ([]statistic.ProfileSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refresh {
		s.invalidateLocked()
		metrics.IncForecastCache(metrics.CacheRefresh)
	}

	signature, err := s.source.Signature(ctx)
	if err != nil {
		s.invalidateLocked()
		return nil, err
	}
	if s.cached && s.signature == signature {
		metrics.IncForecastCache(metrics.CacheHit)
		return s.samples, nil
	}

	s.invalidateLocked()
	if !refresh {
		metrics.IncForecastCache(metrics.CacheMiss)
	}
	samples, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.samples = samples
	s.signature = signature
	s.cached = true
	s.logger.Debug("forecast: source reloaded", zap.String("signature", signature), zap.Int("samples", len(samples)))
	return samples, nil
}
