package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skylark/internal/alerting"
	"skylark/internal/camera"
	"skylark/internal/platform/auth"
)

// Handler exposes the stream control HTTP endpoints. Routes using it must
// sit behind auth.Middleware; ownership is checked against the camera store
// on every call.
type Handler struct {
	orchestrator *Orchestrator
	cameras      camera.Store
	log          *slog.Logger
}

// NewHandler returns a Handler using the given orchestrator and camera store.
func NewHandler(orchestrator *Orchestrator, cameras camera.Store, log *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, cameras: cameras, log: log}
}

// statusResponse is the body for start/stop/status responses.
type statusResponse struct {
	CameraID alerting.CameraID `json:"cameraId"`
	State    State             `json:"state"`
}

// StartStream handles POST /cameras/{id}/start.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.ownedCamera(w, r)
	if !ok {
		return
	}
	if !cam.Enabled {
		writeError(w, http.StatusConflict, "camera is disabled")
		return
	}

	if err := h.orchestrator.StartStream(r.Context(), cam); err != nil {
		h.writeOrchestratorError(w, cam.ID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, statusResponse{
		CameraID: cam.ID,
		State:    h.orchestrator.State(cam.ID),
	})
}

// StopStream handles POST /cameras/{id}/stop.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.ownedCamera(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.StopStream(r.Context(), cam.ID); err != nil {
		h.writeOrchestratorError(w, cam.ID, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		CameraID: cam.ID,
		State:    h.orchestrator.State(cam.ID),
	})
}

// StreamStatus handles GET /cameras/{id}/status.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.ownedCamera(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		CameraID: cam.ID,
		State:    h.orchestrator.State(cam.ID),
	})
}

// ownedCamera resolves {id} to a camera owned by the authenticated caller.
// Unknown camera and foreign camera are both 404.
func (h *Handler) ownedCamera(w http.ResponseWriter, r *http.Request) (camera.Camera, bool) {
	cameraID := alerting.CameraID(chi.URLParam(r, "id"))
	if cameraID == "" {
		writeError(w, http.StatusBadRequest, "camera id is required")
		return camera.Camera{}, false
	}

	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return camera.Camera{}, false
	}

	cam, err := h.cameras.OwnedCamera(r.Context(), ownerID, cameraID)
	if err != nil {
		if !errors.Is(err, camera.ErrNotFound) {
			h.log.Error("camera lookup failed",
				slog.String("camera_id", string(cameraID)),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "camera lookup failed")
			return camera.Camera{}, false
		}
		writeError(w, http.StatusNotFound, "camera not found")
		return camera.Camera{}, false
	}
	return cam, true
}

func (h *Handler) writeOrchestratorError(w http.ResponseWriter, cameraID alerting.CameraID, err error) {
	if errors.Is(err, ErrOperationInProgress) {
		writeError(w, http.StatusConflict, "operation already in progress")
		return
	}
	// Upstream failure: the camera is now in the error state and the caller
	// decides whether to retry.
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"error":    "worker request failed",
		"cameraId": cameraID,
		"state":    h.orchestrator.State(cameraID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
