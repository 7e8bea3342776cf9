package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"skylark/internal/alerting"
	"skylark/internal/camera"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeWorker records control calls and can fail or block on demand.
type fakeWorker struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
	block      chan struct{} // if non-nil, StartStream waits on it
}

func (f *fakeWorker) StartStream(ctx context.Context, _ alerting.CameraID, _ string, _ bool) error {
	f.mu.Lock()
	f.startCalls++
	block := f.block
	err := f.startErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeWorker) StopStream(context.Context, alerting.CameraID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeWorker) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.stopCalls
}

func testCamera(id string) camera.Camera {
	return camera.Camera{
		ID:                   alerting.CameraID(id),
		OwnerID:              "alice",
		RTSPURL:              "rtsp://example/" + id,
		Enabled:              true,
		FaceDetectionEnabled: true,
	}
}

func TestOrchestrator_StartStream(t *testing.T) {
	worker := &fakeWorker{}
	o := NewOrchestrator(worker, testLogger(), nil)
	ctx := context.Background()

	if err := o.StartStream(ctx, testCamera("5")); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if got := o.State(alerting.CameraID("5")); got != StateConnecting {
		t.Errorf("state after start ack = %s, want connecting", got)
	}

	t.Run("idempotent_second_start", func(t *testing.T) {
		if err := o.StartStream(ctx, testCamera("5")); err != nil {
			t.Fatalf("second StartStream: %v", err)
		}
		if starts, _ := worker.counts(); starts != 1 {
			t.Errorf("worker saw %d start calls, want 1", starts)
		}
	})
}

func TestOrchestrator_StartStream_worker_failure(t *testing.T) {
	worker := &fakeWorker{startErr: fmt.Errorf("connection refused")}
	o := NewOrchestrator(worker, testLogger(), nil)
	ctx := context.Background()

	err := o.StartStream(ctx, testCamera("5"))
	if err == nil {
		t.Fatal("expected error when worker is unreachable")
	}
	if got := o.State(alerting.CameraID("5")); got != StateError {
		t.Errorf("state after failure = %s, want error", got)
	}

	t.Run("stop_after_error_succeeds", func(t *testing.T) {
		if err := o.StopStream(ctx, alerting.CameraID("5")); err != nil {
			t.Fatalf("StopStream: %v", err)
		}
		if got := o.State(alerting.CameraID("5")); got != StateStopped {
			t.Errorf("state after stop = %s, want stopped", got)
		}
	})

	t.Run("retry_after_error_allowed", func(t *testing.T) {
		worker.mu.Lock()
		worker.startErr = nil
		worker.mu.Unlock()
		if err := o.StartStream(ctx, testCamera("5")); err != nil {
			t.Fatalf("retry StartStream: %v", err)
		}
		if got := o.State(alerting.CameraID("5")); got != StateConnecting {
			t.Errorf("state after retry = %s, want connecting", got)
		}
	})
}

func TestOrchestrator_ConcurrentStartRejected(t *testing.T) {
	block := make(chan struct{})
	worker := &fakeWorker{block: block}
	o := NewOrchestrator(worker, testLogger(), nil)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- o.StartStream(ctx, testCamera("5"))
	}()

	// Wait for the first call to reach the worker.
	deadline := time.After(2 * time.Second)
	for {
		if starts, _ := worker.counts(); starts == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first start never reached the worker")
		case <-time.After(time.Millisecond):
		}
	}

	if err := o.StartStream(ctx, testCamera("5")); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("concurrent start = %v, want ErrOperationInProgress", err)
	}
	if err := o.StopStream(ctx, alerting.CameraID("5")); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("stop during in-flight start = %v, want ErrOperationInProgress", err)
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first StartStream: %v", err)
	}
	if starts, _ := worker.counts(); starts != 1 {
		t.Errorf("worker saw %d start calls, want exactly 1", starts)
	}
}

func TestOrchestrator_DifferentCamerasDoNotContend(t *testing.T) {
	block := make(chan struct{})
	worker := &fakeWorker{block: block}
	o := NewOrchestrator(worker, testLogger(), nil)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- o.StartStream(ctx, testCamera("5"))
	}()

	deadline := time.After(2 * time.Second)
	for {
		if starts, _ := worker.counts(); starts >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first start never reached the worker")
		case <-time.After(time.Millisecond):
		}
	}

	// An operation on another camera must get past the per-camera guard and
	// reach the worker while camera 5 is still in flight.
	done := make(chan error, 1)
	go func() {
		done <- o.StartStream(ctx, testCamera("6"))
	}()
	for {
		if starts, _ := worker.counts(); starts == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second camera's start blocked behind the first camera")
		case <-time.After(time.Millisecond):
		}
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Errorf("camera 5 start: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("camera 6 start: %v", err)
	}
}

func TestOrchestrator_StopStream(t *testing.T) {
	worker := &fakeWorker{}
	o := NewOrchestrator(worker, testLogger(), nil)
	ctx := context.Background()

	t.Run("stop_when_stopped_is_noop", func(t *testing.T) {
		if err := o.StopStream(ctx, alerting.CameraID("5")); err != nil {
			t.Fatalf("StopStream: %v", err)
		}
		if _, stops := worker.counts(); stops != 0 {
			t.Errorf("worker saw %d stop calls for a stopped camera, want 0", stops)
		}
	})

	t.Run("stop_after_start", func(t *testing.T) {
		if err := o.StartStream(ctx, testCamera("5")); err != nil {
			t.Fatal(err)
		}
		if err := o.StopStream(ctx, alerting.CameraID("5")); err != nil {
			t.Fatalf("StopStream: %v", err)
		}
		if got := o.State(alerting.CameraID("5")); got != StateStopped {
			t.Errorf("state = %s, want stopped", got)
		}
	})

	t.Run("worker_not_found_counts_as_ack", func(t *testing.T) {
		worker.mu.Lock()
		worker.stopErr = ErrStreamNotFound
		worker.mu.Unlock()

		if err := o.StartStream(ctx, testCamera("7")); err != nil {
			t.Fatal(err)
		}
		if err := o.StopStream(ctx, alerting.CameraID("7")); err != nil {
			t.Fatalf("StopStream with worker 404: %v", err)
		}
		if got := o.State(alerting.CameraID("7")); got != StateStopped {
			t.Errorf("state = %s, want stopped", got)
		}
	})
}

func TestOrchestrator_StateUnknownCamera(t *testing.T) {
	o := NewOrchestrator(&fakeWorker{}, testLogger(), nil)
	if got := o.State(alerting.CameraID("nope")); got != StateStopped {
		t.Errorf("State(unknown) = %s, want stopped", got)
	}
}
