package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	PayloadsReceived  atomic.Int64
	PayloadsDuplicate atomic.Int64
	PointsStored      atomic.Int64
	ParamsSkipped     atomic.Int64
	OdometerRejects   atomic.Int64
	AlertsTriggered   atomic.Int64
	PointsPruned      atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "ingestion_payloads_received_total %d\n", PayloadsReceived.Load())
	fmt.Fprintf(w, "ingestion_payloads_duplicate_total %d\n", PayloadsDuplicate.Load())
	fmt.Fprintf(w, "ingestion_points_stored_total %d\n", PointsStored.Load())
	fmt.Fprintf(w, "ingestion_params_skipped_total %d\n", ParamsSkipped.Load())
	fmt.Fprintf(w, "ingestion_odometer_rejects_total %d\n", OdometerRejects.Load())
	fmt.Fprintf(w, "ingestion_alerts_triggered_total %d\n", AlertsTriggered.Load())
	fmt.Fprintf(w, "ingestion_points_pruned_total %d\n", PointsPruned.Load())
}
