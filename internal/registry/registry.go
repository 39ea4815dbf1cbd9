package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"livelink/ingestion/internal/domain"
)

// ParameterStore persists parameter definitions. Create must tolerate a
// concurrent create of the same key (first writer wins); Backfill updates
// only the named metadata fields.
type ParameterStore interface {
	GetParameter(ctx context.Context, paramKey string) (*domain.ParameterDefinition, error)
	CreateParameter(ctx context.Context, def *domain.ParameterDefinition) error
	BackfillParameter(ctx context.Context, def *domain.ParameterDefinition) error
}

// Registry maps free-form sensor keys to persisted parameter definitions,
// creating definitions lazily on first sighting. All mutation funnels
// through GetOrRegister; definitions are never deleted here.
type Registry struct {
	store ParameterStore
	ttl   time.Duration
	cache sync.Map // param_key -> cacheEntry
}

// cacheEntry expires so that thresholds and storage intervals tuned
// out of band reach a long-running process without a restart.
type cacheEntry struct {
	def       *domain.ParameterDefinition
	expiresAt time.Time
}

// NewRegistry builds a registry over store. Definitions are cached for
// ttl; ttl <= 0 disables caching and every call reads the store.
func NewRegistry(store ParameterStore, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl}
}

func (r *Registry) cached(paramKey string) *domain.ParameterDefinition {
	raw, ok := r.cache.Load(paramKey)
	if !ok {
		return nil
	}
	entry := raw.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		r.cache.Delete(paramKey)
		return nil
	}
	return entry.def
}

func (r *Registry) remember(def *domain.ParameterDefinition) {
	if r.ttl <= 0 {
		return
	}
	r.cache.Store(def.ParamKey, cacheEntry{
		def:       def,
		expiresAt: time.Now().Add(r.ttl),
	})
}

// classCategories maps a vendor class hint to a dashboard category.
// Unknown or absent hints land in "other".
var classCategories = map[string]domain.Category{
	"temperature":  domain.CategoryTemperature,
	"speed":        domain.CategoryEngine,
	"distance":     domain.CategoryEngine,
	"frequency":    domain.CategoryEngine,
	"pressure":     domain.CategoryEngine,
	"vacuum":       domain.CategoryEngine,
	"power_factor": domain.CategoryEngine,
	"voltage":      domain.CategoryElectrical,
	"battery":      domain.CategoryElectrical,
}

// dashboardClasses are the vendor classes shown on the dashboard by
// default; everything else starts archive-only.
var dashboardClasses = map[string]bool{
	"speed":       true,
	"frequency":   true,
	"temperature": true,
	"voltage":     true,
	"battery":     true,
}

// Classify buckets a vendor class hint into a category.
func Classify(classHint string) domain.Category {
	if c, ok := classCategories[classHint]; ok {
		return c
	}
	return domain.CategoryOther
}

// GetOrRegister returns the definition for paramKey, creating it with
// defaults derived from the hints if it has never been seen. Metadata on
// an existing definition is back-filled only where currently unset.
func (r *Registry) GetOrRegister(ctx context.Context, paramKey, unitHint, classHint string) (*domain.ParameterDefinition, error) {
	if def := r.cached(paramKey); def != nil {
		return r.backfill(ctx, def, unitHint, classHint)
	}

	def, err := r.store.GetParameter(ctx, paramKey)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for %q: %w", paramKey, err)
	}
	if def != nil {
		def, err = r.backfill(ctx, def, unitHint, classHint)
		if err != nil {
			return nil, err
		}
		r.remember(def)
		return def, nil
	}

	def = &domain.ParameterDefinition{
		ParamKey:        paramKey,
		DisplayName:     DisplayName(paramKey),
		Unit:            unitHint,
		ParamClass:      classHint,
		Category:        Classify(classHint),
		ShowOnDashboard: dashboardClasses[classHint],
		ArchiveOnly:     !dashboardClasses[classHint],
		StorageInterval: 0,
	}
	if err := r.store.CreateParameter(ctx, def); err != nil {
		return nil, fmt.Errorf("registry create for %q: %w", paramKey, err)
	}
	r.remember(def)
	return def, nil
}

// backfill fills unit/class/category that were unknown when the
// definition was created. Fields already set are never overwritten.
func (r *Registry) backfill(ctx context.Context, def *domain.ParameterDefinition, unitHint, classHint string) (*domain.ParameterDefinition, error) {
	changed := false
	updated := *def
	if updated.Unit == "" && unitHint != "" {
		updated.Unit = unitHint
		changed = true
	}
	if updated.ParamClass == "" && classHint != "" {
		updated.ParamClass = classHint
		updated.Category = Classify(classHint)
		changed = true
	}
	if !changed {
		return def, nil
	}
	if err := r.store.BackfillParameter(ctx, &updated); err != nil {
		return nil, fmt.Errorf("registry backfill for %q: %w", def.ParamKey, err)
	}
	r.remember(&updated)
	return &updated, nil
}

// Lookup returns the cached or stored definition without registering a
// missing key.
func (r *Registry) Lookup(ctx context.Context, paramKey string) (*domain.ParameterDefinition, error) {
	if def := r.cached(paramKey); def != nil {
		return def, nil
	}
	def, err := r.store.GetParameter(ctx, paramKey)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for %q: %w", paramKey, err)
	}
	if def != nil {
		r.remember(def)
	}
	return def, nil
}

/// DisplayName derives a human name from a sensor key: underscores become
// spaces and each word is title-cased ("ENGINE_RPM" -> "Engine Rpm").
func DisplayName(paramKey string) string {
	spaced := strings.ReplaceAll(paramKey, "_", " ")
	var b strings.Builder
	b.Grow(len(spaced))
	startWord := true
	for _, r := range spaced {
		switch {
		case r >= 'a' && r <= 'z':
			if startWord {
				b.WriteRune(r - 32)
			} else {
				b.WriteRune(r)
			}
			startWord = false
		case r >= 'A' && r <= 'Z':
			if startWord {
				b.WriteRune(r)
			} else {
				b.WriteRune(r + 32)
			}
			startWord = false
		default:
			b.WriteRune(r)
			startWord = true
		}
	}
	return b.String()
}
