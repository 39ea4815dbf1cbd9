package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "livelink_user"),
		dbGetEnv("DB_PASSWORD", "livelink_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "livelink"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_extensions(ctx, conn)
	step2_registry_tables(ctx, conn)
	step3_history_table(ctx, conn)
	step4_rollup_tables(ctx, conn)
	step5_indexes(ctx, conn)
	step6_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Extensions
// ─────────────────────────────────────────────────────────────
func step1_extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	// TimescaleDB — required for the telemetry_history hypertable
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

// ─────────────────────────────────────────────────────────────
// Step 2 — devices, vehicles and parameters
// ─────────────────────────────────────────────────────────────
func step2_registry_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: registry tables ─────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (
			vin           TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL
		);
	`, "vehicles table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (

			device_id          TEXT PRIMARY KEY,

			-- Nullable link to a vehicle; set on first payload carrying a
			-- vin. Deliberately not a foreign key: devices report vins
			-- before anyone curates a vehicles row.
			vin                TEXT,

			-- Fingerprint of the most recently accepted payload.
			-- The ingestion service compares-and-sets this under a
			-- row lock to drop duplicate transmissions.
			last_payload_hash  TEXT
		);
	`, "devices table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS parameters (

			-- Vendor-assigned sensor identifier, e.g. 'A6-Odometer'
			param_key                 TEXT PRIMARY KEY,

			display_name              TEXT NOT NULL,

			-- Metadata back-filled from device hints; NULL = not yet known
			unit                      TEXT,
			param_class               TEXT,

			-- Derived dashboard bucket
			category                  TEXT NOT NULL DEFAULT 'other',

			-- Alert thresholds; NULL = no bound configured
			warning_min               DOUBLE PRECISION,
			warning_max               DOUBLE PRECISION,

			show_on_dashboard         BOOLEAN NOT NULL DEFAULT true,
			archive_only              BOOLEAN NOT NULL DEFAULT false,

			-- 0 = store every admitted sample; operators tune out of band
			storage_interval_seconds  BIGINT NOT NULL DEFAULT 0,

			CONSTRAINT chk_category CHECK (
				category IN ('temperature', 'engine', 'electrical', 'other')
			),
			CONSTRAINT chk_interval CHECK (storage_interval_seconds >= 0)
		);
	`, "parameters table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — telemetry_history hypertable
// ─────────────────────────────────────────────────────────────
func step3_history_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: telemetry_history table ─────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS telemetry_history (

			-- Event time from the device — TimescaleDB partitions by this
			timestamp    TIMESTAMPTZ      NOT NULL,

			-- Server receipt time; device clocks drift
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			vin          TEXT             NOT NULL,
			device_id    TEXT             NOT NULL,
			param_key    TEXT             NOT NULL,

			value        DOUBLE PRECISION NOT NULL,

			-- Duplicate submissions of the same sample are benign;
			-- the unique index absorbs them.
			UNIQUE (device_id, param_key, timestamp)
		);
	`, "telemetry_history table created")

	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'telemetry_history',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "telemetry_history converted to hypertable")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — daily_summary and odometer_records
// ─────────────────────────────────────────────────────────────
func step4_rollup_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: rollup tables ───────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS daily_summary (
			vin           TEXT             NOT NULL,
			param_key     TEXT             NOT NULL,
			day           DATE             NOT NULL,
			min_value     DOUBLE PRECISION NOT NULL,
			max_value     DOUBLE PRECISION NOT NULL,
			avg_value     DOUBLE PRECISION NOT NULL,
			sample_count  BIGINT           NOT NULL,

			PRIMARY KEY (vin, param_key, day)
		);
	`, "daily_summary table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS odometer_records (
			vin      TEXT             NOT NULL,
			date     DATE             NOT NULL,
			mileage  DOUBLE PRECISION NOT NULL,

			-- 'manual' records are operator-entered and never touched
			-- by auto-sync; 'livelink' records may advance same-day.
			source   TEXT             NOT NULL,

			notes    TEXT,

			UNIQUE (vin, date),

			CONSTRAINT chk_source CHECK (source IN ('manual', 'livelink'))
		);
	`, "odometer_records table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_history_vin_param_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_history_vin_param_time
				  ON telemetry_history (vin, param_key, timestamp DESC);`,
			why: "query: admission check + per-parameter history",
		},
		{
			name: "idx_history_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_history_time
				  ON telemetry_history (timestamp);`,
			why: "query: daily aggregation window + retention prune",
		},
		{
			name: "idx_odometer_vin",
			sql: `CREATE INDEX IF NOT EXISTS idx_odometer_vin
				  ON odometer_records (vin, date DESC);`,
			why: "query: current max mileage for a vehicle",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step6_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Verification ────────────────────────")

	tables := []string{"vehicles", "devices", "parameters", "telemetry_history", "daily_summary", "odometer_records"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var hypertableName string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'telemetry_history'
	`).Scan(&hypertableName)
	if err != nil {
		log.Fatalf("telemetry_history is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s (time partitioned)\n", hypertableName)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
