package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
	"livelink/ingestion/internal/metrics"
	"livelink/ingestion/internal/registry"
)

// ThresholdEvaluator compares ingested values against a parameter's
// configured warning bounds and hands crossings to the notifier. It
// holds no cooldown state; repeated-alert suppression is the notifier's
// job.
type ThresholdEvaluator struct {
	registry *registry.Registry
	vehicles VehicleDirectory
	notifier Notifier
	log      *logrus.Logger
}

func NewThresholdEvaluator(
	reg *registry.Registry,
	vehicles VehicleDirectory,
	notifier Notifier,
	log *logrus.Logger,
) *ThresholdEvaluator {
	return &ThresholdEvaluator{
		registry: reg,
		vehicles: vehicles,
		notifier: notifier,
		log:      log,
	}
}

// Evaluate returns the alert for value against paramKey's bounds, or nil
// when no bound is crossed. warning_max is checked before warning_min.
// Notifier failures are logged and never propagated.
func (e *ThresholdEvaluator) Evaluate(ctx context.Context, vin, paramKey string, value float64) (*domain.ThresholdAlert, error) {
	def, err := e.registry.Lookup(ctx, paramKey)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}

	alert := &domain.ThresholdAlert{
		VIN:           vin,
		ParamKey:      paramKey,
		ParameterName: def.DisplayName,
		Value:         value,
		Unit:          def.Unit,
	}
	switch {
	case def.WarningMax != nil && value > *def.WarningMax:
		alert.ThresholdType = domain.ThresholdMax
		alert.ThresholdValue = *def.WarningMax
	case def.WarningMin != nil && value < *def.WarningMin:
		alert.ThresholdType = domain.ThresholdMin
		alert.ThresholdValue = *def.WarningMin
	default:
		return nil, nil
	}

	alert.VehicleName = e.vehicleName(ctx, vin)
	metrics.AlertsTriggered.Add(1)

	if err := e.notifier.NotifyThreshold(ctx, alert); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"vin":   vin,
			"param": paramKey,
			"type":  string(alert.ThresholdType),
		}).Error("threshold notification failed")
	}
	return alert, nil
}

func (e *ThresholdEvaluator) vehicleName(ctx context.Context, vin string) string {
	name, err := e.vehicles.VehicleDisplayName(ctx, vin)
	if err != nil {
		e.log.WithError(err).WithField("vin", vin).Warn("vehicle lookup failed, using vin")
		return vin
	}
	if name == "" {
		return vin
	}
	return name
}
