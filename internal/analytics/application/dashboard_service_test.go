package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "solar-dashboard/internal/telemetry/domain"
	"solar-dashboard/internal/telemetry/infrastructure/memory"
)

type brokenSource struct{}

func (brokenSource) ReadRange(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	return nil, errors.New("disk unreadable")
}

func seededStore(t *testing.T, n int) *memory.SequenceStore {
	t.Helper()
	store := memory.NewSequenceStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, store.Append(context.Background(), telemetry.Reading{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Power:     float64(i),
		}))
	}
	return store
}

func TestDashboardMinutesTail(t *testing.T) {
	svc, err := NewDashboardService(seededStore(t, 10))
	require.NoError(t, err)

	view, err := svc.Minutes(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, view.Buckets, 3)
	require.Len(t, view.Deltas, 3)
	assert.Equal(t, 7.0, view.Buckets[0].Power.Avg)
	require.NotNil(t, view.Deltas[0].Power, "tail deltas are computed against the full window")
	assert.Equal(t, 1.0, *view.Deltas[0].Power)
}

func TestDashboardWindowLimit(t *testing.T) {
	svc, err := NewDashboardService(seededStore(t, 10), WithDefaultWindow(4))
	require.NoError(t, err)

	summary, err := svc.Summary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Count)
	assert.Equal(t, 6.0, summary.Power.Min)

	hourly, err := svc.Hourly(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, hourly, 24)
	assert.Equal(t, 2, hourly[0].Samples)

	energy, err := svc.DailyEnergy(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, energy, 1)
	assert.Equal(t, "2024-01-01", energy[0].Date)
}

func TestDashboardStorageError(t *testing.T) {
	svc, err := NewDashboardService(brokenSource{})
	require.NoError(t, err)

	_, err = svc.DailyEnergy(context.Background(), 0)
	assert.ErrorIs(t, err, telemetry.ErrStorage)
}
