package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"solar-dashboard/internal/analytics/domain/statistic"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// StoreSource derives forecast samples from the telemetry sequence store,
// using the raw light level as irradiance.
type StoreSource struct {
	store telemetry.SequenceStore
	limit int
}

// NewStoreSource constructs a store-backed profile source. limit bounds the
// number of recent readings considered; <= 0 reads the whole log.
func NewStoreSource(store telemetry.SequenceStore, limit int) (*StoreSource, error) {
	if store == nil {
		return nil, errors.New("store profile source: nil store")
	}
	return &StoreSource{store: store, limit: limit}, nil
}

// Signature combines the store's log version with the latest slot. Stores
// without a version fall back to the log length.
func (s *StoreSource) Signature(ctx context.Context) (string, error) {
	latest, err := s.store.ReadLatest(ctx)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", fmt.Errorf("%w: no readings stored", telemetry.ErrNoData)
	}
	version, err := s.logVersion(ctx)
	if err != nil {
		return "", err
	}
	return version + "|" + telemetry.FormatTimestamp(latest.Timestamp) + "|" + latest.DeviceID, nil
}

func (s *StoreSource) logVersion(ctx context.Context) (string, error) {
	if v, ok := s.store.(telemetry.Versioned); ok {
		return v.Version(ctx)
	}
	readings, err := s.store.ReadRange(ctx, 0)
	if err != nil {
		return "", err
	}
	return "n" + strconv.Itoa(len(readings)), nil
}

// Load reads the configured window.
func (s *StoreSource) Load(ctx context.Context) ([]statistic.ProfileSample, error) {
	readings, err := s.store.ReadRange(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	return statistic.ProfileFromReadings(readings), nil
}
