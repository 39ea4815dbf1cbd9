package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
)

// odometerMarkers identify odometer-like parameter keys by substring,
// case-insensitively. "A6-" is the standard OBD2 PID 0xA6, which always
// reports kilometers.
var odometerMarkers = []string{
	"A6-",
	"ODOMETER",
	"ODO",
	"MILEAGE",
	"DISTANCE_TOTAL",
	"TOTAL_DISTANCE",
}

const (
	// Absolute implausibility cap for any odometer reading.
	maxPlausibleMileage = 1_000_000

	// Largest believable jump past the current recorded maximum; guards
	// against overflow glitches like a PID momentarily reporting 0xFFFFFF.
	maxForwardJump = 10_000

	kmPerMile = 1.609344
)

// IsOdometerKey reports whether a parameter key carries an odometer-like
// reading.
func IsOdometerKey(paramKey string) bool {
	upper := strings.ToUpper(paramKey)
	for _, m := range odometerMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// IsStandardPIDKey reports whether the key is the standard PID 0xA6
// odometer, which always reports in kilometers.
func IsStandardPIDKey(paramKey string) bool {
	return strings.Contains(strings.ToUpper(paramKey), "A6-")
}

// ConvertDistance converts a kilometer reading into the configured
// system distance unit.
func ConvertDistance(km float64, unit domain.DistanceUnit) float64 {
	if unit == domain.UnitMiles {
		return km / kmPerMile
	}
	return km
}

// SanitizeMileage applies the plausibility rules to an already
// unit-converted mileage reading.
func SanitizeMileage(mileage, currentMax float64) bool {
	if mileage <= 0 {
		return false
	}
	if mileage > maxPlausibleMileage {
		return false
	}
	if currentMax > 0 && mileage > currentMax+maxForwardJump {
		return false
	}
	return true
}

// OdometerSanitizer validates and unit-converts odometer-like readings.
// It is shared by the per-value ingestion path and the payload-level
// auto-sync pass.
type OdometerSanitizer struct {
	settings Settings
}

func NewOdometerSanitizer(settings Settings) *OdometerSanitizer {
	return &OdometerSanitizer{settings: settings}
}

// Sanitize converts rawValue into the system distance unit when the key
// is a standard-PID kilometer reading, then applies the plausibility
// rules against the vehicle's current recorded maximum. It returns the
// converted mileage and whether the reading is acceptable.
func (s *OdometerSanitizer) Sanitize(ctx context.Context, paramKey string, rawValue, currentMax float64) (float64, bool, error) {
	mileage := rawValue
	if IsStandardPIDKey(paramKey) {
		unit, err := s.settings.DistanceUnit(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("distance unit lookup: %w", err)
		}
		mileage = ConvertDistance(rawValue, unit)
	}
	return mileage, SanitizeMileage(mileage, currentMax), nil
}

// syncOdometer is the payload-level auto-sync pass: it picks the
// lexicographically first odometer-like key (a deterministic tie-break;
// the behavior it replaces depended on map iteration order), re-runs the
// sanitizer, and advances the vehicle's daily odometer record. It only
// ever moves the odometer forward and never touches manual records.
func (in *Ingestor) syncOdometer(ctx context.Context, tx TxStore, p *domain.Payload) error {
	var key string
	var raw float64
	for _, k := range sortedKeys(p.Values) {
		if v := p.Values[k]; v != nil && IsOdometerKey(k) {
			key, raw = k, *v
			break
		}
	}
	if key == "" {
		return nil
	}

	currentMax, err := tx.MaxMileage(ctx, p.VIN)
	if err != nil {
		return fmt.Errorf("max mileage for %s: %w", p.VIN, err)
	}

	mileage, ok, err := in.sanitizer.Sanitize(ctx, key, raw, currentMax)
	if err != nil {
		return err
	}
	if !ok {
		in.log.WithFields(logrus.Fields{
			"vin":   p.VIN,
			"param": key,
			"value": raw,
		}).Warn("odometer auto-sync rejected implausible reading")
		return nil
	}
	if mileage <= currentMax {
		return nil
	}

	date := dateOf(p.Timestamp)
	if today := dateOf(time.Now().UTC()); date.After(today) {
		// Device clocks drift; never record a future date.
		date = today
	}

	rec, err := tx.OdometerRecordAt(ctx, p.VIN, date)
	if err != nil {
		return fmt.Errorf("odometer record for %s@%s: %w", p.VIN, date.Format("2006-01-02"), err)
	}
	if rec != nil {
		if rec.Source != domain.OdometerSourceLiveLink {
			return nil
		}
		rec.Mileage = mileage
		if err := tx.UpdateOdometerRecord(ctx, rec); err != nil {
			return fmt.Errorf("update odometer record: %w", err)
		}
		return nil
	}

	rec = &domain.OdometerRecord{
		VIN:     p.VIN,
		Date:    date,
		Mileage: mileage,
		Source:  domain.OdometerSourceLiveLink,
		Notes:   fmt.Sprintf("Auto-synced from %s", key),
	}
	if err := tx.CreateOdometerRecord(ctx, rec); err != nil {
		return fmt.Errorf("create odometer record: %w", err)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
