package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"skylark/internal/alerting"
	"skylark/internal/camera"
	"skylark/internal/platform/metrics"
)

// State is the requested lifecycle state of a camera's video pipeline. The
// orchestrator is authoritative for the requested state only: it never
// observes actual media flow, so a camera stays in StateConnecting after the
// worker acknowledges a start. The relay handshake that moves a viewer to
// live video happens directly between the browser and the media relay.
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateError      State = "error"
)

// ErrOperationInProgress is returned when a start or stop is requested for a
// camera that already has a worker control call in flight. Callers retry
// once the first call resolves; the orchestrator never queues requests.
var ErrOperationInProgress = errors.New("stream operation already in progress")

// WorkerClient issues control calls to the external detection worker.
// Implementations must honor ctx and fail rather than block indefinitely.
type WorkerClient interface {
	StartStream(ctx context.Context, cameraID alerting.CameraID, rtspURL string, faceDetection bool) error
	StopStream(ctx context.Context, cameraID alerting.CameraID) error
}

// cameraEntry serializes operations for one camera. Entries for different
// cameras never contend with one another.
type cameraEntry struct {
	mu       sync.Mutex
	state    State
	inFlight bool
}

// Orchestrator drives the start/stop lifecycle of camera pipelines against
// the external worker and tracks the requested state per camera.
type Orchestrator struct {
	worker  WorkerClient
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[alerting.CameraID]*cameraEntry
}

// NewOrchestrator returns an Orchestrator using the given worker client.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewOrchestrator(worker WorkerClient, log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		worker:  worker,
		log:     log,
		metrics: m,
		entries: make(map[alerting.CameraID]*cameraEntry),
	}
}

func (o *Orchestrator) entry(cameraID alerting.CameraID) *cameraEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[cameraID]
	if !ok {
		e = &cameraEntry{state: StateStopped}
		o.entries[cameraID] = e
	}
	return e
}

// StartStream asks the worker to begin ingesting cam's video source. It
// returns once the worker acknowledges the request, not once video flows.
// Starting an already-connecting or already-streaming camera with no call in
// flight is an idempotent no-op; a concurrent operation on the same camera
// is rejected with ErrOperationInProgress. On worker failure the camera
// moves to StateError and the error is returned; there is no silent retry.
func (o *Orchestrator) StartStream(ctx context.Context, cam camera.Camera) error {
	e := o.entry(cam.ID)

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrOperationInProgress
	}
	if e.state == StateConnecting || e.state == StateStreaming {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.state = StateConnecting
	e.mu.Unlock()

	err := o.worker.StartStream(ctx, cam.ID, cam.RTSPURL, cam.FaceDetectionEnabled)
	if errors.Is(err, ErrAlreadyRunning) {
		// The worker already runs this pipeline; treat as acknowledged.
		err = nil
	}

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.state = StateError
	}
	e.mu.Unlock()

	if err != nil {
		o.log.Error("start stream failed",
			slog.String("camera_id", string(cam.ID)),
			slog.String("error", err.Error()))
		if o.metrics != nil {
			o.metrics.IncWorkerErrors()
		}
		return err
	}

	o.log.Info("stream start acknowledged", slog.String("camera_id", string(cam.ID)))
	if o.metrics != nil {
		o.metrics.IncStreamStarts()
	}
	return nil
}

// StopStream asks the worker to tear down the camera's pipeline. Stopping an
// already-stopped camera is a no-op; a worker "stream not found" response
// counts as acknowledged since the pipeline is already down.
func (o *Orchestrator) StopStream(ctx context.Context, cameraID alerting.CameraID) error {
	e := o.entry(cameraID)

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrOperationInProgress
	}
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.mu.Unlock()

	err := o.worker.StopStream(ctx, cameraID)
	if errors.Is(err, ErrStreamNotFound) {
		err = nil
	}

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.state = StateError
	} else {
		e.state = StateStopped
	}
	e.mu.Unlock()

	if err != nil {
		o.log.Error("stop stream failed",
			slog.String("camera_id", string(cameraID)),
			slog.String("error", err.Error()))
		if o.metrics != nil {
			o.metrics.IncWorkerErrors()
		}
		return err
	}

	o.log.Info("stream stop acknowledged", slog.String("camera_id", string(cameraID)))
	if o.metrics != nil {
		o.metrics.IncStreamStops()
	}
	return nil
}

// State returns the requested state of the camera's pipeline. Unknown
// cameras are stopped.
func (o *Orchestrator) State(cameraID alerting.CameraID) State {
	o.mu.Lock()
	e, ok := o.entries[cameraID]
	o.mu.Unlock()
	if !ok {
		return StateStopped
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
