package profile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"solar-dashboard/internal/analytics/domain/statistic"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// CSVSource reads forecast samples from a CSV file with a header row
// containing a timestamp column plus power and irradiance columns. Column
// names follow the telemetry alias table.
type CSVSource struct {
	path   string
	logger *zap.Logger
}

// NewCSVSource constructs a CSV profile source.
func NewCSVSource(path string, logger *zap.Logger) (*CSVSource, error) {
	if path == "" {
		return nil, errors.New("csv profile source: empty path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, logger: logger}, nil
}

// Signature is the file's modification time and size.
func (s *CSVSource) Signature(ctx context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s not found", telemetry.ErrNoData, s.path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", telemetry.ErrStorage, s.path, err)
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(info.Size(), 10), nil
}

// Load parses every row with a valid timestamp.
func (s *CSVSource) Load(ctx context.Context) ([]statistic.ProfileSample, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", telemetry.ErrNoData, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", telemetry.ErrStorage, s.path, err)
	}
	defer f.Close()
	return s.parse(ctx, f)
}

func (s *CSVSource) parse(ctx context.Context, r io.Reader) ([]statistic.ProfileSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []statistic.ProfileSample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", telemetry.ErrStorage, err)
	}

	samples := make([]statistic.ProfileSample, 0)
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %v", telemetry.ErrStorage, err)
		}
		raw := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(row) {
				raw[name] = row[i]
			}
		}
		value, ok := telemetry.Lookup(raw, telemetry.FieldTimestamp)
		if !ok {
			skipped++
			continue
		}
		ts, ok := telemetry.ParseTimestamp(value)
		if !ok {
			skipped++
			continue
		}
		samples = append(samples, statistic.ProfileSample{
			Timestamp:  ts,
			Power:      telemetry.NumberField(raw, telemetry.FieldPower),
			Irradiance: telemetry.NumberField(raw, telemetry.FieldIrradiance),
		})
	}
	if skipped > 0 {
		s.logger.Debug("csv profile source: skipped rows", zap.String("path", s.path), zap.Int("skipped", skipped))
	}
	return samples, nil
}
