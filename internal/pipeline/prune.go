package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/metrics"
)

// Pruner deletes raw history older than the retention horizon. It never
// touches the latest cache or the daily summaries.
type Pruner struct {
	history       HistoryStore
	retentionDays int
	interval      time.Duration
	log           *logrus.Logger
}

func NewPruner(history HistoryStore, retentionDays int, interval time.Duration, log *logrus.Logger) *Pruner {
	return &Pruner{
		history:       history,
		retentionDays: retentionDays,
		interval:      interval,
		log:           log,
	}
}

// Prune deletes all history rows with a timestamp older than
// retentionDays ago and returns how many were deleted. Idempotent: a
// second run with nothing eligible deletes zero rows.
func (p *Pruner) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := p.history.DeletePointsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.PointsPruned.Add(deleted)
	return deleted, nil
}

// Run prunes on a fixed interval until the context is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := p.Prune(ctx, p.retentionDays)
			if err != nil {
				p.log.WithError(err).Error("retention prune failed")
				continue
			}
			p.log.WithFields(logrus.Fields{
				"deleted":        deleted,
				"retention_days": p.retentionDays,
			}).Info("retention prune complete")
		case <-ctx.Done():
			return
		}
	}
}
