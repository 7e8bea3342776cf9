package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"skylark/internal/alerting"
)

// DefaultWorkerTimeout bounds a worker control round trip when no timeout is
// configured. A control call is never left pending indefinitely.
const DefaultWorkerTimeout = 10 * time.Second

var (
	// ErrAlreadyRunning is returned when the worker reports the camera's
	// pipeline is already running (conflict on start).
	ErrAlreadyRunning = errors.New("worker: stream already running")

	// ErrStreamNotFound is returned when the worker has no pipeline for the
	// camera (not found on stop).
	ErrStreamNotFound = errors.New("worker: stream not found")
)

// HTTPWorkerClient talks to the detection worker's control API. The worker
// address is injected, never hardcoded.
type HTTPWorkerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWorkerClient returns a worker client for the given base URL. If
// timeout is zero or negative, DefaultWorkerTimeout is used.
func NewHTTPWorkerClient(baseURL string, timeout time.Duration) *HTTPWorkerClient {
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}
	return &HTTPWorkerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type startStreamRequest struct {
	CameraID             alerting.CameraID `json:"cameraId"`
	RtspURL              string            `json:"rtspUrl"`
	FaceDetectionEnabled bool              `json:"faceDetectionEnabled"`
}

type stopStreamRequest struct {
	CameraID alerting.CameraID `json:"cameraId"`
}

// StartStream implements WorkerClient.StartStream via
// POST {base}/start-stream.
func (c *HTTPWorkerClient) StartStream(ctx context.Context, cameraID alerting.CameraID, rtspURL string, faceDetection bool) error {
	status, err := c.post(ctx, "/start-stream", startStreamRequest{
		CameraID:             cameraID,
		RtspURL:              rtspURL,
		FaceDetectionEnabled: faceDetection,
	})
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusConflict:
		return ErrAlreadyRunning
	case status < 200 || status >= 300:
		return fmt.Errorf("worker rejected start: status %d", status)
	}
	return nil
}

// StopStream implements WorkerClient.StopStream via POST {base}/stop-stream.
func (c *HTTPWorkerClient) StopStream(ctx context.Context, cameraID alerting.CameraID) error {
	status, err := c.post(ctx, "/stop-stream", stopStreamRequest{CameraID: cameraID})
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return ErrStreamNotFound
	case status < 200 || status >= 300:
		return fmt.Errorf("worker rejected stop: status %d", status)
	}
	return nil
}

func (c *HTTPWorkerClient) post(ctx context.Context, path string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal worker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
