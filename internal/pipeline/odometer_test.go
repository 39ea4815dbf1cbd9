package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelink/ingestion/internal/domain"
)

func TestIsOdometerKey(t *testing.T) {
	assert.True(t, IsOdometerKey("A6-Odometer"))
	assert.True(t, IsOdometerKey("a6-odometer"))
	assert.True(t, IsOdometerKey("engine_odo"))
	assert.True(t, IsOdometerKey("VEHICLE_MILEAGE"))
	assert.True(t, IsOdometerKey("TOTAL_DISTANCE"))
	assert.True(t, IsOdometerKey("distance_total_km"))

	assert.False(t, IsOdometerKey("ENGINE_RPM"))
	assert.False(t, IsOdometerKey("COOLANT_TEMP"))
	assert.False(t, IsOdometerKey("BATTERY_VOLTAGE"))
}

func TestIsStandardPIDKey(t *testing.T) {
	assert.True(t, IsStandardPIDKey("A6-Odometer"))
	assert.True(t, IsStandardPIDKey("a6-Odometer"))
	assert.False(t, IsStandardPIDKey("ODOMETER"))
}

func TestConvertDistance(t *testing.T) {
	assert.InDelta(t, 62.137, ConvertDistance(100, domain.UnitMiles), 0.001)
	assert.Equal(t, 100.0, ConvertDistance(100, domain.UnitKilometers))
}

func TestSanitizeMileageBounds(t *testing.T) {
	// Non-positive readings are always garbage.
	assert.False(t, SanitizeMileage(0, 0))
	assert.False(t, SanitizeMileage(-12, 0))

	// Absolute implausibility cap.
	assert.False(t, SanitizeMileage(1_000_001, 0))
	assert.True(t, SanitizeMileage(999_999, 0))

	// Forward-jump guard relative to the recorded maximum.
	assert.False(t, SanitizeMileage(60_001, 50_000))
	assert.True(t, SanitizeMileage(55_000, 50_000))
	assert.True(t, SanitizeMileage(60_000, 50_000))

	// No recorded maximum yet: any plausible reading is accepted.
	assert.True(t, SanitizeMileage(900_000, 0))
}

func TestSanitizeConvertsStandardPID(t *testing.T) {
	s := NewOdometerSanitizer(&fakeSettings{unit: domain.UnitMiles})

	miles, ok, err := s.Sanitize(context.Background(), "A6-Odometer", 100, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 62.137, miles, 0.001)

	// Non-PID odometer keys are taken at face value.
	raw, ok, err := s.Sanitize(context.Background(), "VEHICLE_MILEAGE", 100, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100.0, raw)
}

func TestSanitizeAppliesBoundsAfterConversion(t *testing.T) {
	s := NewOdometerSanitizer(&fakeSettings{unit: domain.UnitMiles})

	// 1,200,000 km is implausible raw, but only ~745,645 miles after
	// conversion — the bounds run on the converted value.
	miles, ok, err := s.Sanitize(context.Background(), "A6-Odometer", 1_200_000, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 745_645, miles, 1)
}
