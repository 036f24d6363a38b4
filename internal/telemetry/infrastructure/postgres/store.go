package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	telemetry "solar-dashboard/internal/telemetry/domain"
)

const (
	defaultReadingsTable = "telemetry_readings"
	defaultLatestTable   = "telemetry_latest"
)

// SequenceStore is a Postgres implementation of the telemetry sequence store.
type SequenceStore struct {
	db          *sql.DB
	table       string
	latestTable string
}

// StoreOption configures the store.
type StoreOption func(*SequenceStore)

// WithTables overrides the default table names.
func WithTables(readings, latest string) StoreOption {
	return func(s *SequenceStore) {
		if readings != "" {
			s.table = readings
		}
		if latest != "" {
			s.latestTable = latest
		}
	}
}

// NewSequenceStore constructs a store with default table names.
func NewSequenceStore(db *sql.DB, opts ...StoreOption) *SequenceStore {
	store := &SequenceStore{db: db, table: defaultReadingsTable, latestTable: defaultLatestTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// EnsureSchema creates the tables when missing.
func (s *SequenceStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("telemetry store: nil db")
	}
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	device_id TEXT NOT NULL,
	voltage DOUBLE PRECISION NOT NULL DEFAULT 0,
	current DOUBLE PRECISION NOT NULL DEFAULT 0,
	power DOUBLE PRECISION NOT NULL DEFAULT 0,
	light_raw DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	slot SMALLINT PRIMARY KEY DEFAULT 1 CHECK (slot = 1),
	ts TIMESTAMPTZ NOT NULL,
	device_id TEXT NOT NULL,
	voltage DOUBLE PRECISION NOT NULL,
	current DOUBLE PRECISION NOT NULL,
	power DOUBLE PRECISION NOT NULL,
	light_raw DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.latestTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %v", telemetry.ErrStorage, err)
		}
	}
	return nil
}

// Append inserts one reading. Arrival order is kept by the seq column.
func (s *SequenceStore) Append(ctx context.Context, reading telemetry.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("telemetry store: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (ts, device_id, voltage, current, power, light_raw)
VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
	if _, err := s.db.ExecContext(ctx, query,
		reading.Timestamp.UTC(),
		reading.DeviceID,
		reading.Voltage,
		reading.Current,
		reading.Power,
		reading.LightRaw,
	); err != nil {
		return fmt.Errorf("%w: append: %v", telemetry.ErrStorage, err)
	}
	return nil
}

// Version is the highest seq in the log, "0" when empty.
func (s *SequenceStore) Version(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("telemetry store: nil db")
	}
	query := fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM %s`, s.table)
	var seq int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&seq); err != nil {
		return "", fmt.Errorf("%w: version: %v", telemetry.ErrStorage, err)
	}
	return strconv.FormatInt(seq, 10), nil
}

// SetLatest upserts the single latest-value row.
func (s *SequenceStore) SetLatest(ctx context.Context, reading telemetry.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("telemetry store: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (slot, ts, device_id, voltage, current, power, light_raw)
VALUES (1, $1, $2, $3, $4, $5, $6)
ON CONFLICT (slot)
DO UPDATE SET
	ts = EXCLUDED.ts,
	device_id = EXCLUDED.device_id,
	voltage = EXCLUDED.voltage,
	current = EXCLUDED.current,
	power = EXCLUDED.power,
	light_raw = EXCLUDED.light_raw,
	updated_at = NOW()`, s.latestTable)
	if _, err := s.db.ExecContext(ctx, query,
		reading.Timestamp.UTC(),
		reading.DeviceID,
		reading.Voltage,
		reading.Current,
		reading.Power,
		reading.LightRaw,
	); err != nil {
		return fmt.Errorf("%w: set latest: %v", telemetry.ErrStorage, err)
	}
	return nil
}

// ReadLatest returns nil when the slot is empty.
func (s *SequenceStore) ReadLatest(ctx context.Context) (*telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("telemetry store: nil db")
	}
	query := fmt.Sprintf(`
SELECT ts, device_id, voltage, current, power, light_raw
FROM %s
WHERE slot = 1`, s.latestTable)
	var r telemetry.Reading
	err := s.db.QueryRowContext(ctx, query).Scan(&r.Timestamp, &r.DeviceID, &r.Voltage, &r.Current, &r.Power, &r.LightRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read latest: %v", telemetry.ErrStorage, err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// ReadRange returns the newest readings in arrival order, oldest first.
func (s *SequenceStore) ReadRange(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("telemetry store: nil db")
	}
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		query := fmt.Sprintf(`
SELECT ts, device_id, voltage, current, power, light_raw
FROM (
	SELECT seq, ts, device_id, voltage, current, power, light_raw
	FROM %s
	ORDER BY seq DESC
	LIMIT $1
) tail
ORDER BY seq ASC`, s.table)
		rows, err = s.db.QueryContext(ctx, query, limit)
	} else {
		query := fmt.Sprintf(`
SELECT ts, device_id, voltage, current, power, light_raw
FROM %s
ORDER BY seq ASC`, s.table)
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read range: %v", telemetry.ErrStorage, err)
	}
	defer rows.Close()

	readings := make([]telemetry.Reading, 0)
	for rows.Next() {
		var r telemetry.Reading
		if err := rows.Scan(&r.Timestamp, &r.DeviceID, &r.Voltage, &r.Current, &r.Power, &r.LightRaw); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", telemetry.ErrStorage, err)
		}
		r.Timestamp = r.Timestamp.UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read range: %v", telemetry.ErrStorage, err)
	}
	return readings, nil
}
