package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

const (
	// LatestFileName holds the latest-value slot.
	LatestFileName = "latest.json"
	// LogFileName holds the append-only CSV log.
	LogFileName = "telemetry_log.csv"
)

// SequenceStore keeps telemetry under a data directory: a JSON latest-value
// file and a CSV append log. Writes are serialized by a single mutex.
type SequenceStore struct {
	dir    string
	logger *zap.Logger

	mu sync.RWMutex
}

// Option configures the store.
type Option func(*SequenceStore)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SequenceStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSequenceStore constructs a store rooted at dir, creating it when missing.
func NewSequenceStore(dir string, opts ...Option) (*SequenceStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", telemetry.ErrStorage, err)
	}
	s := &SequenceStore{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LogPath returns the CSV log location.
func (s *SequenceStore) LogPath() string {
	return filepath.Join(s.dir, LogFileName)
}

func (s *SequenceStore) latestPath() string {
	return filepath.Join(s.dir, LatestFileName)
}

// Append writes one CSV line, emitting the header when the log is new.
func (s *SequenceStore) Append(ctx context.Context, reading telemetry.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.LogPath()
	info, statErr := os.Stat(path)
	writeHeader := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open log: %v", telemetry.ErrStorage, err)
	}
	w := csv.NewWriter(f)
	if writeHeader {
		_ = w.Write(telemetry.CSVHeader)
	}
	_ = w.Write(reading.CSVRecord())
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: append log: %v", telemetry.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close log: %v", telemetry.ErrStorage, err)
	}
	return nil
}

// Version is the log's size and modification time. Appends only grow the
// file, so every append changes it.
func (s *SequenceStore) Version(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.LogPath())
	if errors.Is(err, os.ErrNotExist) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat log: %v", telemetry.ErrStorage, err)
	}
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano()), nil
}

// SetLatest replaces latest.json atomically.
func (s *SequenceStore) SetLatest(ctx context.Context, reading telemetry.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(reading, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode latest: %v", telemetry.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, LatestFileName+".*")
	if err != nil {
		return fmt.Errorf("%w: write latest: %v", telemetry.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write latest: %v", telemetry.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write latest: %v", telemetry.ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.latestPath()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write latest: %v", telemetry.ErrStorage, err)
	}
	return nil
}

// ReadLatest returns nil when no reading has been stored.
func (s *SequenceStore) ReadLatest(ctx context.Context) (*telemetry.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.latestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read latest: %v", telemetry.ErrStorage, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode latest: %v", telemetry.ErrStorage, err)
	}
	reading, ok := telemetry.NormalizeRecord(raw)
	if !ok {
		return nil, fmt.Errorf("%w: latest has no valid timestamp", telemetry.ErrStorage)
	}
	return &reading, nil
}

// ReadRange parses the CSV log, skipping malformed rows.
func (s *SequenceStore) ReadRange(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.LogPath())
	if errors.Is(err, os.ErrNotExist) {
		return []telemetry.Reading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open log: %v", telemetry.ErrStorage, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []telemetry.Reading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read log header: %v", telemetry.ErrStorage, err)
	}
	header = append([]string(nil), header...)

	readings := make([]telemetry.Reading, 0)
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read log: %v", telemetry.ErrStorage, err)
		}
		reading, ok := telemetry.RecordFromCSV(header, row)
		if !ok {
			skipped++
			continue
		}
		readings = append(readings, reading)
	}
	if skipped > 0 {
		s.logger.Debug("file store: skipped malformed rows", zap.Int("skipped", skipped))
	}

	if limit > 0 && len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}
	return readings, nil
}
