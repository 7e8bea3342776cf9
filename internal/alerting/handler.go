package alerting

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"skylark/internal/platform/metrics"
)

// Handler exposes the alert ingestion and listing HTTP endpoints.
type Handler struct {
	store       AlertStore
	broadcaster *Broadcaster
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewHandler returns a Handler using the given store and broadcaster.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(store AlertStore, broadcaster *Broadcaster, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{store: store, broadcaster: broadcaster, log: log, metrics: m}
}

// IngestAlert handles POST /alerts from the detection worker.
// Body: { "cameraId": "7", "snapshotUrl": "/snapshots/x.jpg", "boundingBoxes": [...] }.
// The alert is persisted first and broadcast only afterwards, so the pushed
// payload is always the stored record.
func (h *Handler) IngestAlert(w http.ResponseWriter, r *http.Request) {
	var n NewAlert
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		h.log.Debug("invalid alert body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if n.CameraID == "" {
		writeError(w, http.StatusBadRequest, "cameraId is required")
		return
	}

	alert, err := h.store.CreateAlert(r.Context(), n)
	if err != nil {
		h.log.Error("persist alert failed",
			slog.String("camera_id", string(n.CameraID)),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to persist alert")
		return
	}

	// Deliveries are non-blocking enqueues; the worker's response never
	// waits on any subscriber.
	h.broadcaster.Publish(alert)

	h.log.Debug("alert ingested",
		slog.String("alert_id", alert.ID),
		slog.String("camera_id", string(alert.CameraID)),
		slog.Int("bounding_boxes", len(alert.BoundingBoxes)))

	writeJSON(w, http.StatusCreated, alert)
	if h.metrics != nil {
		h.metrics.IncAlertsIngested()
	}
}

// ListAlerts handles GET /alerts?cameraId=&limit=, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	cameraID := CameraID(r.URL.Query().Get("cameraId"))

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	alerts, err := h.store.RecentAlerts(r.Context(), cameraID, limit)
	if err != nil {
		h.log.Error("list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
