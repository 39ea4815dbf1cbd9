package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelink/ingestion/internal/domain"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedPoint(t *testing.T, s *fakeStore, vin, param string, value float64, ts time.Time) {
	t.Helper()
	err := s.InsertPoint(context.Background(), &domain.TelemetryPoint{
		VIN:        vin,
		DeviceID:   "D-" + vin,
		ParamKey:   param,
		Value:      value,
		Timestamp:  ts,
		ReceivedAt: ts,
	})
	require.NoError(t, err)
}

func TestAggregateComputesDailyRollups(t *testing.T) {
	store := newFakeStore()
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	seedPoint(t, store, "V1", "RPM", 1000, day.Add(1*time.Hour))
	seedPoint(t, store, "V1", "RPM", 3000, day.Add(2*time.Hour))
	seedPoint(t, store, "V1", "RPM", 2000, day.Add(3*time.Hour))
	seedPoint(t, store, "V1", "COOLANT_TEMP", 88, day.Add(1*time.Hour))
	seedPoint(t, store, "V2", "RPM", 500, day.Add(4*time.Hour))
	// Outside the window: previous day and next midnight.
	seedPoint(t, store, "V1", "RPM", 9999, day.Add(-1*time.Minute))
	seedPoint(t, store, "V1", "RPM", 9999, day.Add(24*time.Hour))

	agg := NewAggregator(store, store, time.Hour, discardLogger())
	n, err := agg.Aggregate(context.Background(), day, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rpm := store.summaries["V1|RPM|2026-08-28"]
	require.NotNil(t, rpm)
	assert.Equal(t, 1000.0, rpm.MinValue)
	assert.Equal(t, 3000.0, rpm.MaxValue)
	assert.Equal(t, 2000.0, rpm.AvgValue)
	assert.Equal(t, int64(3), rpm.SampleCount)

	coolant := store.summaries["V1|COOLANT_TEMP|2026-08-28"]
	require.NotNil(t, coolant)
	assert.Equal(t, int64(1), coolant.SampleCount)
}

func TestAggregateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	seedPoint(t, store, "V1", "RPM", 1000, day.Add(1*time.Hour))
	seedPoint(t, store, "V1", "RPM", 2000, day.Add(2*time.Hour))

	agg := NewAggregator(store, store, time.Hour, discardLogger())

	n1, err := agg.Aggregate(context.Background(), day, "")
	require.NoError(t, err)
	first := *store.summaries["V1|RPM|2026-08-28"]

	n2, err := agg.Aggregate(context.Background(), day, "")
	require.NoError(t, err)
	second := *store.summaries["V1|RPM|2026-08-28"]

	assert.Equal(t, n1, n2)
	assert.Equal(t, first, second)
	assert.Len(t, store.summaries, 1)
}

func TestAggregateFiltersByVin(t *testing.T) {
	store := newFakeStore()
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	seedPoint(t, store, "V1", "RPM", 1000, day.Add(1*time.Hour))
	seedPoint(t, store, "V2", "RPM", 2000, day.Add(1*time.Hour))

	agg := NewAggregator(store, store, time.Hour, discardLogger())
	n, err := agg.Aggregate(context.Background(), day, "V2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, store.summaries["V1|RPM|2026-08-28"])
	assert.NotNil(t, store.summaries["V2|RPM|2026-08-28"])
}
