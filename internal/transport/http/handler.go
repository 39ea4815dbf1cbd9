package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"livelink/ingestion/internal/domain"
	"livelink/ingestion/internal/metrics"
	"livelink/ingestion/internal/pipeline"
)

// TelemetryHandler is the ingest endpoint: it decodes one gateway
// payload and hands it to the pipeline. Transport owns nothing beyond
// decode/validate/respond.
type TelemetryHandler struct {
	ingestor *pipeline.Ingestor
	log      *logrus.Logger
}

func NewTelemetryHandler(ingestor *pipeline.Ingestor, log *logrus.Logger) *TelemetryHandler {
	return &TelemetryHandler{ingestor: ingestor, log: log}
}

type ingestResponse struct {
	Status      string `json:"status"`
	StoredCount int    `json:"stored_count"`
	Duplicate   bool   `json:"duplicate"`
	Skipped     int    `json:"skipped"`
}

func (h *TelemetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var payload domain.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON payload")
		return
	}
	if payload.DeviceID == "" || payload.VIN == "" {
		writeError(w, http.StatusBadRequest, "device_id and vin are required")
		return
	}
	payload.ReceivedAt = time.Now().UTC()

	metrics.PayloadsReceived.Add(1)

	res, err := h.ingestor.Ingest(r.Context(), &payload)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"device": payload.DeviceID,
			"vin":    payload.VIN,
		}).Error("payload ingestion failed")
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	status := "accepted"
	if res.Duplicate {
		status = "duplicate"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ingestResponse{
		Status:      status,
		StoredCount: res.StoredCount,
		Duplicate:   res.Duplicate,
		Skipped:     len(res.Skips),
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
