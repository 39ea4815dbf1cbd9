package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
)

// Aggregator rolls one day of raw history up into per-(vin, parameter)
// daily summaries. Aggregate is idempotent: re-running a date overwrites
// the summaries with recomputed values, which is what backfill and
// repair rely on.
type Aggregator struct {
	history   HistoryStore
	summaries SummaryStore
	interval  time.Duration
	log       *logrus.Logger
}

func NewAggregator(history HistoryStore, summaries SummaryStore, interval time.Duration, log *logrus.Logger) *Aggregator {
	return &Aggregator{
		history:   history,
		summaries: summaries,
		interval:  interval,
		log:       log,
	}
}

// Aggregate computes min/max/avg/count for every (vin, param_key) seen in
// [midnight(date), midnight(date)+24h) and upserts the summaries. An
// empty vin aggregates all vehicles. Returns the number of rows upserted.
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time, vin string) (int, error) {
	from := dateOf(date)
	to := from.Add(24 * time.Hour)

	points, err := a.history.PointsInWindow(ctx, from, to, vin)
	if err != nil {
		return 0, fmt.Errorf("history window %s: %w", from.Format("2006-01-02"), err)
	}

	type bucket struct {
		min, max, sum float64
		count         int64
	}
	type groupKey struct {
		vin, param string
	}
	groups := make(map[groupKey]*bucket)
	order := make([]groupKey, 0)
	for _, p := range points {
		k := groupKey{p.VIN, p.ParamKey}
		b, ok := groups[k]
		if !ok {
			groups[k] = &bucket{min: p.Value, max: p.Value, sum: p.Value, count: 1}
			order = append(order, k)
			continue
		}
		if p.Value < b.min {
			b.min = p.Value
		}
		if p.Value > b.max {
			b.max = p.Value
		}
		b.sum += p.Value
		b.count++
	}

	upserted := 0
	for _, k := range order {
		b := groups[k]
		s := &domain.DailySummary{
			VIN:         k.vin,
			ParamKey:    k.param,
			Day:         from,
			MinValue:    b.min,
			MaxValue:    b.max,
			AvgValue:    b.sum / float64(b.count),
			SampleCount: b.count,
		}
		if err := a.summaries.UpsertSummary(ctx, s); err != nil {
			return upserted, fmt.Errorf("summary upsert for %s/%s: %w", k.vin, k.param, err)
		}
		upserted++
	}
	return upserted, nil
}

// Run re-aggregates yesterday and today on a fixed interval. Today's
// summaries are partial until the day closes; the upsert converges them.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ticker.C:
			a.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, day := range []time.Time{now.Add(-24 * time.Hour), now} {
		n, err := a.Aggregate(ctx, day, "")
		if err != nil {
			a.log.WithError(err).WithField("date", dateOf(day).Format("2006-01-02")).Error("daily aggregation failed")
			continue
		}
		a.log.WithFields(logrus.Fields{
			"date": dateOf(day).Format("2006-01-02"),
			"rows": n,
		}).Debug("daily aggregation complete")
	}
}
