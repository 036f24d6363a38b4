package memory

import (
	"context"
	"strconv"
	"sync"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

// SequenceStore is an in-memory telemetry store.
type SequenceStore struct {
	mu       sync.RWMutex
	readings []telemetry.Reading
	latest   *telemetry.Reading
	appends  uint64
}

// NewSequenceStore constructs an empty store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{}
}

// Append adds a reading to the log.
func (s *SequenceStore) Append(ctx context.Context, reading telemetry.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, reading)
	s.appends++
	return nil
}

// Version is the number of appends so far.
func (s *SequenceStore) Version(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strconv.FormatUint(s.appends, 10), nil
}

// SetLatest overwrites the latest-value slot.
func (s *SequenceStore) SetLatest(ctx context.Context, reading telemetry.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := reading
	s.latest = &latest
	return nil
}

// ReadLatest returns the latest reading or nil.
func (s *SequenceStore) ReadLatest(ctx context.Context) (*telemetry.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, nil
	}
	latest := *s.latest
	return &latest, nil
}

// ReadRange returns at most limit of the newest readings, oldest first.
func (s *SequenceStore) ReadRange(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.readings) > limit {
		start = len(s.readings) - limit
	}
	out := make([]telemetry.Reading, len(s.readings)-start)
	copy(out, s.readings[start:])
	return out, nil
}
