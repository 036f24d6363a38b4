package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

func TestSequenceStoreNilDB(t *testing.T) {
	store := NewSequenceStore(nil)
	assert.Error(t, store.Append(context.Background(), telemetry.Reading{}))
	_, err := store.ReadRange(context.Background(), 1)
	assert.Error(t, err)
	_, err = store.Version(context.Background())
	assert.Error(t, err)
}

func TestSequenceStorePostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	suffix := time.Now().UTC().Format("150405")
	store := NewSequenceStore(db, WithTables("telemetry_readings_t"+suffix, "telemetry_latest_t"+suffix))
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = db.Exec("DROP TABLE IF EXISTS telemetry_readings_t" + suffix)
		_, _ = db.Exec("DROP TABLE IF EXISTS telemetry_latest_t" + suffix)
	})

	latest, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
	version, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", version)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		r := telemetry.Reading{Timestamp: base.Add(time.Duration(i) * time.Minute), DeviceID: "esp32-01", Power: float64(i)}
		require.NoError(t, store.Append(ctx, r))
		require.NoError(t, store.SetLatest(ctx, r))
	}

	version, err = store.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "0", version)

	tail, err := store.ReadRange(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 2.0, tail[0].Power)
	assert.Equal(t, 3.0, tail[1].Power)

	latest, err = store.ReadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, base.Add(3*time.Minute).Equal(latest.Timestamp))
}
