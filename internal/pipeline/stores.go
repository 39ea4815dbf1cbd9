package pipeline

import (
	"context"
	"time"

	"livelink/ingestion/internal/domain"
)

// Store is the persistent store behind ingestion. InTx runs fn inside one
// storage transaction; every write fn performs through the TxStore is
// atomic with respect to a concurrent payload for the same device.
type Store interface {
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore bundles the storage surfaces a single payload touches.
type TxStore interface {
	DeviceStore
	HistoryStore
	OdometerStore
}

// DeviceStore tracks per-device dedup state. LastPayloadHash creates the
// device row if missing and must lock it for the rest of the transaction
// so two near-simultaneous identical payloads cannot both pass the dedup
// check.
type DeviceStore interface {
	LastPayloadHash(ctx context.Context, deviceID, vin string) (string, error)
	SetLastPayloadHash(ctx context.Context, deviceID, fingerprint string) error
}

// HistoryStore is the raw telemetry time series. InsertPoint absorbs a
// unique-constraint hit: the row is "already stored", never an error.
type HistoryStore interface {
	LastPointTime(ctx context.Context, vin, paramKey string) (time.Time, bool, error)
	InsertPoint(ctx context.Context, p *domain.TelemetryPoint) error
	PointsInWindow(ctx context.Context, from, to time.Time, vin string) ([]domain.TelemetryPoint, error)
	DeletePointsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SummaryStore holds the daily rollups.
type SummaryStore interface {
	UpsertSummary(ctx context.Context, s *domain.DailySummary) error
}

// OdometerStore is the external odometer record collaborator.
type OdometerStore interface {
	MaxMileage(ctx context.Context, vin string) (float64, error)
	OdometerRecordAt(ctx context.Context, vin string, date time.Time) (*domain.OdometerRecord, error)
	CreateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error
	UpdateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error
}

// LatestCache is the dashboard cache: one current value per (vin, param),
// overwritten on every accepted payload.
type LatestCache interface {
	UpsertLatest(ctx context.Context, values []domain.LatestValue) error
}

// Settings is the external system-settings lookup.
type Settings interface {
	DistanceUnit(ctx context.Context) (domain.DistanceUnit, error)
}

// VehicleDirectory resolves a vin to display fields for alert text.
type VehicleDirectory interface {
	VehicleDisplayName(ctx context.Context, vin string) (string, error)
}

// Notifier receives threshold alerts. Cooldown and fan-out are its
// problem; failures never roll back ingestion.
type Notifier interface {
	NotifyThreshold(ctx context.Context, alert *domain.ThresholdAlert) error
}
