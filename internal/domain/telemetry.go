package domain

import "time"

// Payload is one ingestion message from a gateway device: a flat map of
// parameter key to value, plus optional per-parameter metadata hints the
// device sends alongside its first transmissions.
type Payload struct {
	DeviceID  string                `json:"device_id"`
	VIN       string                `json:"vin"`
	Timestamp time.Time             `json:"timestamp"`
	Values    map[string]*float64   `json:"values"`
	Config    map[string]ParamHints `json:"config,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// ParamHints is vendor-supplied metadata for a parameter key. Both fields
// are optional; absent hints never block ingestion.
type ParamHints struct {
	Unit  string `json:"unit,omitempty"`
	Class string `json:"class,omitempty"`
}

// Category is the derived dashboard bucket for a parameter.
type Category string

const (
	CategoryTemperature Category = "temperature"
	CategoryEngine      Category = "engine"
	CategoryElectrical  Category = "electrical"
	CategoryOther       Category = "other"
)

// ParameterDefinition is the persisted registration of a sensor key.
// ParamKey is immutable once created; unit, class and category may be
// back-filled the first time a hint arrives but are never overwritten.
type ParameterDefinition struct {
	ParamKey        string
	DisplayName     string
	Unit            string
	ParamClass      string
	Category        Category
	WarningMin      *float64
	WarningMax      *float64
	ShowOnDashboard bool
	ArchiveOnly     bool
	StorageInterval time.Duration
}

// TelemetryPoint is one historical sample. Rows are unique on
// (device_id, param_key, timestamp); a conflicting insert is a benign
// duplicate, never an error. Rows are only ever deleted by retention
// pruning, never updated.
type TelemetryPoint struct {
	VIN        string
	DeviceID   string
	ParamKey   string
	Value      float64
	Timestamp  time.Time
	ReceivedAt time.Time
}

// LatestValue is the dashboard cache entry for one (vin, param_key):
// overwritten by every accepted payload regardless of whether the sample
// was admitted to history.
type LatestValue struct {
	VIN        string    `json:"-"`
	ParamKey   string    `json:"-"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// DailySummary is one (vin, param_key, day) rollup used for long-range
// charts without scanning raw history.
type DailySummary struct {
	VIN         string
	ParamKey    string
	Day         time.Time
	MinValue    float64
	MaxValue    float64
	AvgValue    float64
	SampleCount int64
}

// OdometerSource identifies who wrote an odometer record. Manual records
// are operator-entered and never overwritten by auto-sync.
type OdometerSource string

const (
	OdometerSourceManual   OdometerSource = "manual"
	OdometerSourceLiveLink OdometerSource = "livelink"
)

// OdometerRecord is the per-day odometer reading for a vehicle.
type OdometerRecord struct {
	VIN     string
	Date    time.Time
	Mileage float64
	Source  OdometerSource
	Notes   string
}

// SkipReason classifies why a parameter in a payload was not processed.
// Skips are logged per parameter, never propagated as errors.
type SkipReason string

const (
	SkipNullValue        SkipReason = "null_value"
	SkipOdometerRejected SkipReason = "odometer_rejected"
)

// ParamSkip records one skipped parameter for the ingest result trail.
type ParamSkip struct {
	ParamKey string
	Reason   SkipReason
}

// IngestResult is what one Ingest call did with a payload.
type IngestResult struct {
	// Duplicate is true when the payload fingerprint matched the device's
	// previous payload; a duplicate has zero side effects.
	Duplicate bool

	// StoredCount is the number of parameters written to history.
	StoredCount int

	Skips []ParamSkip
}

// ThresholdType distinguishes which configured bound a value crossed.
type ThresholdType string

const (
	ThresholdMin ThresholdType = "min"
	ThresholdMax ThresholdType = "max"
)

// ThresholdAlert is the hand-off to the external notifier when a value
// crosses a parameter's configured warning bound. Cooldown of repeated
// alerts belongs to the notifier, not to the evaluator.
type ThresholdAlert struct {
	VIN            string
	VehicleName    string
	ParamKey       string
	ParameterName  string
	Value          float64
	ThresholdType  ThresholdType
	ThresholdValue float64
	Unit           string
}

// DistanceUnit is the system-wide distance unit setting.
type DistanceUnit string

const (
	UnitMiles      DistanceUnit = "miles"
	UnitKilometers DistanceUnit = "kilometers"
)
