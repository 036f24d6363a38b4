package bridge

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

const (
	defaultReplayStep = time.Hour
	minReplayDelay    = 10 * time.Millisecond
)

// Record is one replayable row.
type Record struct {
	At      time.Time
	Payload map[string]any
}

// RecordSink receives raw ingest payloads.
type RecordSink interface {
	Post(ctx context.Context, payload map[string]any) error
}

// LoadRecords reads a headed CSV file. Rows without a parseable timestamp are
// skipped; numeric cells are sent as numbers.
func LoadRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("bridge: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bridge: read row: %w", err)
		}
		payload := make(map[string]any, len(header))
		for i, name := range header {
			if i >= len(row) || name == "" {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				payload[name] = f
				continue
			}
			payload[name] = cell
		}
		value, ok := telemetry.Lookup(payload, telemetry.FieldTimestamp)
		if !ok {
			continue
		}
		at, ok := telemetry.ParseTimestamp(value)
		if !ok {
			continue
		}
		for _, key := range telemetry.Aliases(telemetry.FieldTimestamp) {
			delete(payload, key)
		}
		payload["timestamp"] = at.Format(time.RFC3339)
		records = append(records, Record{At: at, Payload: payload})
	}
	return records, nil
}

// Delays returns, for each record, the recorded gap to the next one. The gap
// after the last record wraps to the first using the median positive step.
func Delays(records []Record) []time.Duration {
	n := len(records)
	if n == 0 {
		return nil
	}
	var steps []float64
	delays := make([]time.Duration, n)
	for i := 0; i < n-1; i++ {
		d := records[i+1].At.Sub(records[i].At)
		if d < 0 {
			d = 0
		}
		delays[i] = d
		if d > 0 {
			steps = append(steps, d.Seconds())
		}
	}
	wrap := defaultReplayStep
	if len(steps) > 0 {
		sort.Float64s(steps)
		wrap = time.Duration(stat.Quantile(0.5, stat.Empirical, steps, nil) * float64(time.Second))
	}
	delays[n-1] = wrap
	return delays
}

// Replayer plays records back at an accelerated pace.
type Replayer struct {
	sink    RecordSink
	speedup float64
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// NewReplayer constructs a replayer. speedup is recorded seconds per real second.
func NewReplayer(sink RecordSink, speedup float64, logger *zap.Logger) (*Replayer, error) {
	if sink == nil {
		return nil, errors.New("bridge: nil record sink")
	}
	if speedup <= 0 {
		return nil, errors.New("bridge: speedup must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{sink: sink, speedup: speedup, sleep: sleepContext, logger: logger}, nil
}

// Run posts records starting at start, looping. rounds <= 0 loops until ctx is done.
func (r *Replayer) Run(ctx context.Context, records []Record, start int, rounds int) error {
	n := len(records)
	if n == 0 {
		return errors.New("bridge: no records to replay")
	}
	delays := Delays(records)
	index := ((start % n) + n) % n
	total := rounds * n
	for played := 0; rounds <= 0 || played < total; played++ {
		record := records[index]
		if err := r.sink.Post(ctx, record.Payload); err != nil {
			r.logger.Warn("bridge: replay post failed", zap.Int("index", index), zap.Error(err))
		} else {
			r.logger.Info("bridge: replayed", zap.Int("index", index), zap.Time("at", record.At))
		}
		wait := time.Duration(float64(delays[index]) / r.speedup)
		if wait < minReplayDelay {
			wait = minReplayDelay
		}
		if err := r.sleep(ctx, wait); err != nil {
			return nil
		}
		index = (index + 1) % n
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
