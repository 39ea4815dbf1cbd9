package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
	"livelink/ingestion/internal/registry"
)

// fakeStore is an in-memory stand-in for the postgres store. InTx just
// runs fn against the same maps; transactional rollback is not modeled.
type fakeStore struct {
	mu        sync.Mutex
	hashes    map[string]string
	points    []domain.TelemetryPoint
	pointKeys map[string]bool
	odometer  map[string]*domain.OdometerRecord
	summaries map[string]*domain.DailySummary
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:    make(map[string]string),
		pointKeys: make(map[string]bool),
		odometer:  make(map[string]*domain.OdometerRecord),
		summaries: make(map[string]*domain.DailySummary),
	}
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	return fn(s)
}

func (s *fakeStore) LastPayloadHash(ctx context.Context, deviceID, vin string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[deviceID], nil
}

func (s *fakeStore) SetLastPayloadHash(ctx context.Context, deviceID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[deviceID] = fingerprint
	return nil
}

func (s *fakeStore) LastPointTime(ctx context.Context, vin, paramKey string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	found := false
	for _, p := range s.points {
		if p.VIN == vin && p.ParamKey == paramKey && p.Timestamp.After(last) {
			last = p.Timestamp
			found = true
		}
	}
	return last, found, nil
}

func (s *fakeStore) InsertPoint(ctx context.Context, p *domain.TelemetryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%d", p.DeviceID, p.ParamKey, p.Timestamp.UnixNano())
	if s.pointKeys[key] {
		return nil
	}
	s.pointKeys[key] = true
	s.points = append(s.points, *p)
	return nil
}

func (s *fakeStore) PointsInWindow(ctx context.Context, from, to time.Time, vin string) ([]domain.TelemetryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TelemetryPoint
	for _, p := range s.points {
		if p.Timestamp.Before(from) || !p.Timestamp.Before(to) {
			continue
		}
		if vin != "" && p.VIN != vin {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) DeletePointsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.TelemetryPoint
	var deleted int64
	for _, p := range s.points {
		if p.Timestamp.Before(cutoff) {
			deleted++
			delete(s.pointKeys, fmt.Sprintf("%s|%s|%d", p.DeviceID, p.ParamKey, p.Timestamp.UnixNano()))
			continue
		}
		kept = append(kept, p)
	}
	s.points = kept
	return deleted, nil
}

func (s *fakeStore) MaxMileage(ctx context.Context, vin string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max float64
	for _, rec := range s.odometer {
		if rec.VIN == vin && rec.Mileage > max {
			max = rec.Mileage
		}
	}
	return max, nil
}

func odoKey(vin string, date time.Time) string {
	return vin + "|" + date.Format("2006-01-02")
}

func (s *fakeStore) OdometerRecordAt(ctx context.Context, vin string, date time.Time) (*domain.OdometerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.odometer[odoKey(vin, date)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) CreateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.odometer[odoKey(rec.VIN, rec.Date)] = &cp
	return nil
}

func (s *fakeStore) UpdateOdometerRecord(ctx context.Context, rec *domain.OdometerRecord) error {
	return s.CreateOdometerRecord(ctx, rec)
}

func (s *fakeStore) UpsertSummary(ctx context.Context, sum *domain.DailySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sum
	s.summaries[fmt.Sprintf("%s|%s|%s", sum.VIN, sum.ParamKey, sum.Day.Format("2006-01-02"))] = &cp
	return nil
}

// fakeParamStore backs the registry in tests.
type fakeParamStore struct {
	mu   sync.Mutex
	defs map[string]*domain.ParameterDefinition
}

func newFakeParamStore() *fakeParamStore {
	return &fakeParamStore{defs: make(map[string]*domain.ParameterDefinition)}
}

func (s *fakeParamStore) GetParameter(ctx context.Context, paramKey string) (*domain.ParameterDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[paramKey]
	if !ok {
		return nil, nil
	}
	cp := *def
	return &cp, nil
}

func (s *fakeParamStore) CreateParameter(ctx context.Context, def *domain.ParameterDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.ParamKey]; ok {
		return nil
	}
	cp := *def
	s.defs[def.ParamKey] = &cp
	return nil
}

func (s *fakeParamStore) BackfillParameter(ctx context.Context, def *domain.ParameterDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *def
	s.defs[def.ParamKey] = &cp
	return nil
}

// fakeCache records latest-value upserts.
type fakeCache struct {
	mu     sync.Mutex
	latest map[string]domain.LatestValue
}

func newFakeCache() *fakeCache {
	return &fakeCache{latest: make(map[string]domain.LatestValue)}
}

func (c *fakeCache) UpsertLatest(ctx context.Context, values []domain.LatestValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, lv := range values {
		c.latest[lv.VIN+"|"+lv.ParamKey] = lv
	}
	return nil
}

func (c *fakeCache) get(vin, paramKey string) (domain.LatestValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lv, ok := c.latest[vin+"|"+paramKey]
	return lv, ok
}

type fakeSettings struct {
	unit domain.DistanceUnit
}

func (s *fakeSettings) DistanceUnit(ctx context.Context) (domain.DistanceUnit, error) {
	return s.unit, nil
}

type fakeVehicles struct {
	names map[string]string
}

func (v *fakeVehicles) VehicleDisplayName(ctx context.Context, vin string) (string, error) {
	return v.names[vin], nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.ThresholdAlert
}

func (n *fakeNotifier) NotifyThreshold(ctx context.Context, alert *domain.ThresholdAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, *alert)
	return nil
}

// testEnv wires an ingestor against all the fakes.
type testEnv struct {
	store    *fakeStore
	params   *fakeParamStore
	cache    *fakeCache
	notifier *fakeNotifier
	registry *registry.Registry
	ingestor *Ingestor
}

func newTestEnv(unit domain.DistanceUnit) *testEnv {
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newFakeStore()
	params := newFakeParamStore()
	cache := newFakeCache()
	notifier := &fakeNotifier{}
	reg := registry.NewRegistry(params, time.Minute)
	settings := &fakeSettings{unit: unit}
	vehicles := &fakeVehicles{names: map[string]string{}}

	sanitizer := NewOdometerSanitizer(settings)
	thresholds := NewThresholdEvaluator(reg, vehicles, notifier, log)
	ingestor := NewIngestor(store, cache, reg, sanitizer, thresholds, log)

	return &testEnv{
		store:    store,
		params:   params,
		cache:    cache,
		notifier: notifier,
		registry: reg,
		ingestor: ingestor,
	}
}

func fptr(v float64) *float64 {
	return &v
}
