package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// SampleSink receives parsed samples.
type SampleSink interface {
	PostSample(ctx context.Context, sample Sample) error
}

// Forward reads lines from r until EOF or cancellation and posts every sample
// the parser yields. Post failures are logged and do not stop the loop.
func Forward(ctx context.Context, r io.Reader, sink SampleSink, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var parser Parser
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Text()
		logger.Debug("bridge: line", zap.String("line", line))
		sample, ok := parser.Parse(line)
		if !ok {
			continue
		}
		if err := sink.PostSample(ctx, sample); err != nil {
			logger.Warn("bridge: post failed", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("bridge: read: %w", err)
	}
	return nil
}

// Simulator produces synthetic samples around a 12 V / 5 A panel.
type Simulator struct {
	rnd *rand.Rand
}

// NewSimulator seeds a simulator.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rnd: rand.New(rand.NewSource(seed))}
}

// Next returns the next synthetic sample.
func (s *Simulator) Next() Sample {
	v := round2(12 + (s.rnd.Float64()*2 - 1))
	i := round2(5 + (s.rnd.Float64() - 0.5))
	return Sample{
		Voltage:  v,
		Current:  i,
		Power:    round2(v * i),
		LightRaw: s.rnd.Intn(1024),
	}
}

// Run posts a synthetic sample every interval. count <= 0 runs until ctx is done.
func (s *Simulator) Run(ctx context.Context, sink SampleSink, interval time.Duration, count int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for sent := 0; count <= 0 || sent < count; sent++ {
		sample := s.Next()
		if err := sink.PostSample(ctx, sample); err != nil {
			logger.Warn("bridge: post failed", zap.Error(err))
		} else {
			logger.Info("bridge: simulated sample",
				zap.Float64("voltage", sample.Voltage),
				zap.Float64("current", sample.Current),
				zap.Float64("power", sample.Power),
				zap.Int("light_raw", sample.LightRaw),
			)
		}
		if count > 0 && sent+1 >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
