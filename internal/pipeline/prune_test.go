package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelink/ingestion/internal/domain"
)

func TestPruneDeletesOnlyExpiredHistory(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()

	seedPoint(t, store, "V1", "RPM", 1000, now.AddDate(0, 0, -40))
	seedPoint(t, store, "V1", "RPM", 1100, now.AddDate(0, 0, -31))
	seedPoint(t, store, "V1", "RPM", 1200, now.AddDate(0, 0, -1))
	seedPoint(t, store, "V1", "RPM", 1300, now)

	require.NoError(t, store.UpsertSummary(context.Background(), &domain.DailySummary{
		VIN:         "V1",
		ParamKey:    "RPM",
		Day:         dateOf(now.AddDate(0, 0, -40)),
		MinValue:    1000,
		MaxValue:    1000,
		AvgValue:    1000,
		SampleCount: 1,
	}))

	pruner := NewPruner(store, 30, time.Hour, discardLogger())

	deleted, err := pruner.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Len(t, store.points, 2)

	// Summaries outlive the raw history they were computed from.
	assert.Len(t, store.summaries, 1)

	// Nothing left to delete on a second pass.
	deleted, err = pruner.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
