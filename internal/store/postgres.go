package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"livelink/ingestion/internal/config"
	"livelink/ingestion/internal/domain"
	"livelink/ingestion/internal/pipeline"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every store
// method works inside or outside a payload transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the persistent store: devices, parameter registry,
// telemetry history, daily summaries, odometer records and vehicle names.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool, q: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn with a store bound to one transaction. The payload
// pipeline uses this so the dedup check, history inserts and odometer
// write for one payload commit or roll back together.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx pipeline.TxStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, q: tx})
	})
}

// LastPayloadHash returns the device's stored payload fingerprint,
// creating the device row on first contact and refreshing its vin link.
// The upsert locks the row for the rest of the transaction, which is
// what serializes two near-simultaneous payloads from one device.
func (s *PostgresStore) LastPayloadHash(ctx context.Context, deviceID, vin string) (string, error) {
	var hash string
	err := s.q.QueryRow(ctx, `
		INSERT INTO devices (device_id, vin)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (device_id) DO UPDATE
			SET vin = COALESCE(NULLIF($2, ''), devices.vin)
		RETURNING COALESCE(last_payload_hash, '')
	`, deviceID, vin).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("device upsert failed: %w", err)
	}
	return hash, nil
}

func (s *PostgresStore) SetLastPayloadHash(ctx context.Context, deviceID, fingerprint string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE devices SET last_payload_hash = $2 WHERE device_id = $1
	`, deviceID, fingerprint)
	if err != nil {
		return fmt.Errorf("payload hash update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastPointTime(ctx context.Context, vin, paramKey string) (time.Time, bool, error) {
	var ts time.Time
	err := s.q.QueryRow(ctx, `
		SELECT timestamp FROM telemetry_history
		WHERE vin = $1 AND param_key = $2
		ORDER BY timestamp DESC
		LIMIT 1
	`, vin, paramKey).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last point lookup failed: %w", err)
	}
	return ts, true, nil
}

// InsertPoint writes one history row. The unique constraint on
// (device_id, param_key, timestamp) absorbs duplicate submissions.
func (s *PostgresStore) InsertPoint(ctx context.Context, p *domain.TelemetryPoint) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO telemetry_history
			(vin, device_id, param_key, value, timestamp, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id, param_key, timestamp) DO NOTHING
	`, p.VIN, p.DeviceID, p.ParamKey, p.Value, p.Timestamp, p.ReceivedAt)
	if err != nil {
		return fmt.Errorf("history insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PointsInWindow(ctx context.Context, from, to time.Time, vin string) ([]domain.TelemetryPoint, error) {
	query := `
		SELECT vin, device_id, param_key, value, timestamp, received_at
		FROM telemetry_history
		WHERE timestamp >= $1 AND timestamp < $2
	`
	args := []any{from, to}
	if vin != "" {
		query += " AND vin = $3"
		args = append(args, vin)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history window query failed: %w", err)
	}
	defer rows.Close()

	var points []domain.TelemetryPoint
	for rows.Next() {
		var p domain.TelemetryPoint
		if err := rows.Scan(&p.VIN, &p.DeviceID, &p.ParamKey, &p.Value, &p.Timestamp, &p.ReceivedAt); err != nil {
			return nil, fmt.Errorf("history row scan failed: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) DeletePointsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM telemetry_history WHERE timestamp < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, sum *domain.DailySummary) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO daily_summary
			(vin, param_key, day, min_value, max_value, avg_value, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (vin, param_key, day) DO UPDATE SET
			min_value    = EXCLUDED.min_value,
			max_value    = EXCLUDED.max_value,
			avg_value    = EXCLUDED.avg_value,
			sample_count = EXCLUDED.sample_count
	`, sum.VIN, sum.ParamKey, sum.Day, sum.MinValue, sum.MaxValue, sum.AvgValue, sum.SampleCount)
	if err != nil {
		return fmt.Errorf("summary upsert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MaxMileage(ctx context.Context, vin string) (float64, error) {
	var max float64
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(mileage), 0) FROM odometer_records WHERE vin = $1
	`, vin).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max mileage query failed: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) OdometerRecordAt(ctx context.Context, vin string, date time.Time) (*domain.OdometerRecord, error) {
	var rec domain.OdometerRecord
	err := s.q.QueryRow(ctx, `
		SELECT vin, date, mileage, source, COALESCE(notes, '')
		FROM odometer_records
		WHERE vin = $1 AND date = $2
	`, vin, date).Scan(&rec.VIN, &rec.Date, &rec.Mileage, &rec.Source, &rec.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("odometer record query failed: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) CreateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO odometer_records (vin, date, mileage, source, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.VIN, rec.Date, rec.Mileage, string(rec.Source), rec.Notes)
	if err != nil {
		return fmt.Errorf("odometer insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error {
	_, err := s.q.Exec(ctx, `
		UPDATE odometer_records
		SET mileage = $3, notes = $4
		WHERE vin = $1 AND date = $2
	`, rec.VIN, rec.Date, rec.Mileage, rec.Notes)
	if err != nil {
		return fmt.Errorf("odometer update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetParameter(ctx context.Context, paramKey string) (*domain.ParameterDefinition, error) {
	var def domain.ParameterDefinition
	var intervalSeconds int64
	err := s.q.QueryRow(ctx, `
		SELECT param_key, display_name, COALESCE(unit, ''), COALESCE(param_class, ''),
		       category, warning_min, warning_max,
		       show_on_dashboard, archive_only, storage_interval_seconds
		FROM parameters
		WHERE param_key = $1
	`, paramKey).Scan(
		&def.ParamKey, &def.DisplayName, &def.Unit, &def.ParamClass,
		&def.Category, &def.WarningMin, &def.WarningMax,
		&def.ShowOnDashboard, &def.ArchiveOnly, &intervalSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parameter query failed: %w", err)
	}
	def.StorageInterval = time.Duration(intervalSeconds) * time.Second
	return &def, nil
}

func (s *PostgresStore) CreateParameter(ctx context.Context, def *domain.ParameterDefinition) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO parameters
			(param_key, display_name, unit, param_class, category,
			 warning_min, warning_max, show_on_dashboard, archive_only,
			 storage_interval_seconds)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (param_key) DO NOTHING
	`, def.ParamKey, def.DisplayName, def.Unit, def.ParamClass, string(def.Category),
		def.WarningMin, def.WarningMax, def.ShowOnDashboard, def.ArchiveOnly,
		int64(def.StorageInterval/time.Second))
	if err != nil {
		return fmt.Errorf("parameter insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) BackfillParameter(ctx context.Context, def *domain.ParameterDefinition) error {
	_, err := s.q.Exec(ctx, `
		UPDATE parameters
		SET unit        = COALESCE(unit, NULLIF($2, '')),
		    param_class = COALESCE(param_class, NULLIF($3, '')),
		    category    = $4
		WHERE param_key = $1
	`, def.ParamKey, def.Unit, def.ParamClass, string(def.Category))
	if err != nil {
		return fmt.Errorf("parameter backfill failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) VehicleDisplayName(ctx context.Context, vin string) (string, error) {
	var name string
	err := s.q.QueryRow(ctx, `
		SELECT display_name FROM vehicles WHERE vin = $1
	`, vin).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vehicle lookup failed: %w", err)
	}
	return name, nil
}
