package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
	"livelink/ingestion/internal/metrics"
	"livelink/ingestion/internal/registry"
)

// Ingestor is the per-payload orchestrator: dedup gate, per-parameter
// registration/sanitation/admission, latest-cache upsert, odometer
// auto-sync, then threshold evaluation for every accepted value.
//
// All durable writes for one payload happen inside one storage
// transaction; the latest-value cache and threshold notifications run
// after commit and never roll ingestion back.
type Ingestor struct {
	db         Store
	cache      LatestCache
	registry   *registry.Registry
	sanitizer  *OdometerSanitizer
	thresholds *ThresholdEvaluator
	log        *logrus.Logger
}

func NewIngestor(
	db Store,
	cache LatestCache,
	reg *registry.Registry,
	sanitizer *OdometerSanitizer,
	thresholds *ThresholdEvaluator,
	log *logrus.Logger,
) *Ingestor {
	return &Ingestor{
		db:         db,
		cache:      cache,
		registry:   reg,
		sanitizer:  sanitizer,
		thresholds: thresholds,
		log:        log,
	}
}

// Ingest processes one payload. A payload whose fingerprint matches the
// device's previous one is a duplicate and has zero side effects. The
// returned StoredCount is the number of parameters written to history;
// every non-null, non-rejected value refreshes the latest cache whether
// or not it was admitted to history.
func (in *Ingestor) Ingest(ctx context.Context, p *domain.Payload) (*domain.IngestResult, error) {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now().UTC()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = p.ReceivedAt
	}

	fingerprint := ComputeFingerprint(p.Values)
	res := &domain.IngestResult{}
	var latest []domain.LatestValue

	err := in.db.InTx(ctx, func(tx TxStore) error {
		last, err := tx.LastPayloadHash(ctx, p.DeviceID, p.VIN)
		if err != nil {
			return fmt.Errorf("dedup lookup for device %s: %w", p.DeviceID, err)
		}
		if last == fingerprint {
			res.Duplicate = true
			return nil
		}

		for _, k := range sortedKeys(p.Values) {
			def, lv, skip, err := in.ingestValue(ctx, tx, p, k)
			if err != nil {
				return err
			}
			if skip != nil {
				res.Skips = append(res.Skips, *skip)
				continue
			}
			latest = append(latest, *lv)
			stored, err := in.storeHistory(ctx, tx, p, def, lv)
			if err != nil {
				return err
			}
			if stored {
				res.StoredCount++
			}
		}

		if err := in.syncOdometer(ctx, tx, p); err != nil {
			return err
		}

		return tx.SetLastPayloadHash(ctx, p.DeviceID, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		metrics.PayloadsDuplicate.Add(1)
		return res, nil
	}

	metrics.PointsStored.Add(int64(res.StoredCount))
	metrics.ParamsSkipped.Add(int64(len(res.Skips)))

	if len(latest) > 0 {
		if err := in.cache.UpsertLatest(ctx, latest); err != nil {
			return nil, fmt.Errorf("latest cache update for %s: %w", p.VIN, err)
		}
	}

	if in.thresholds != nil {
		for _, lv := range latest {
			if _, err := in.thresholds.Evaluate(ctx, lv.VIN, lv.ParamKey, lv.Value); err != nil {
				in.log.WithError(err).WithFields(logrus.Fields{
					"vin":   lv.VIN,
					"param": lv.ParamKey,
				}).Error("threshold evaluation failed")
			}
		}
	}

	return res, nil
}

// ingestValue handles one parameter up to the latest-value stage:
// registration, odometer sanitation and unit conversion. It returns
// either the value to cache or a skip.
func (in *Ingestor) ingestValue(ctx context.Context, tx TxStore, p *domain.Payload, key string) (*domain.ParameterDefinition, *domain.LatestValue, *domain.ParamSkip, error) {
	raw := p.Values[key]
	if raw == nil {
		return nil, nil, &domain.ParamSkip{ParamKey: key, Reason: domain.SkipNullValue}, nil
	}

	hints := p.Config[key]
	def, err := in.registry.GetOrRegister(ctx, key, hints.Unit, hints.Class)
	if err != nil {
		return nil, nil, nil, err
	}

	value := *raw
	if IsOdometerKey(key) {
		currentMax, err := tx.MaxMileage(ctx, p.VIN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("max mileage for %s: %w", p.VIN, err)
		}
		converted, ok, err := in.sanitizer.Sanitize(ctx, key, value, currentMax)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			metrics.OdometerRejects.Add(1)
			in.log.WithFields(logrus.Fields{
				"vin":   p.VIN,
				"param": key,
				"value": value,
			}).Warn("rejected implausible odometer reading")
			return nil, nil, &domain.ParamSkip{ParamKey: key, Reason: domain.SkipOdometerRejected}, nil
		}
		value = converted
	}

	return def, &domain.LatestValue{
		VIN:        p.VIN,
		ParamKey:   key,
		Value:      value,
		Timestamp:  p.Timestamp,
		ReceivedAt: p.ReceivedAt,
	}, nil, nil
}

// storeHistory applies the sampling-interval admission check and writes
// the history row. A unique-constraint hit inside InsertPoint is
// "already stored" and still counts as stored.
func (in *Ingestor) storeHistory(ctx context.Context, tx TxStore, p *domain.Payload, def *domain.ParameterDefinition, lv *domain.LatestValue) (bool, error) {
	if def.StorageInterval > 0 {
		lastTS, found, err := tx.LastPointTime(ctx, lv.VIN, lv.ParamKey)
		if err != nil {
			return false, fmt.Errorf("admission lookup for %s/%s: %w", lv.VIN, lv.ParamKey, err)
		}
		if found && lv.Timestamp.Sub(lastTS) < def.StorageInterval {
			return false, nil
		}
	}

	err := tx.InsertPoint(ctx, &domain.TelemetryPoint{
		VIN:        lv.VIN,
		DeviceID:   p.DeviceID,
		ParamKey:   lv.ParamKey,
		Value:      lv.Value,
		Timestamp:  lv.Timestamp,
		ReceivedAt: lv.ReceivedAt,
	})
	if err != nil {
		return false, fmt.Errorf("history insert for %s/%s: %w", lv.VIN, lv.ParamKey, err)
	}
	return true, nil
}

// sortedKeys gives the per-parameter loop a deterministic order; map
// iteration order would make skip trails and the odometer tie-break
// nondeterministic.
func sortedKeys(values map[string]*float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
