package alerting

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAlert(id string, cameraID CameraID) Alert {
	return Alert{
		ID:        id,
		CameraID:  cameraID,
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestBroadcaster_DeliversOnlyToSubscribers(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, testLogger(), nil)

	clientA := &recordingHandle{}
	clientB := &recordingHandle{}
	r.Subscribe(CameraID("7"), clientA)
	r.Subscribe(CameraID("9"), clientB)

	alert := testAlert("1", CameraID("7"))
	b.Publish(alert)

	got := clientA.received()
	if len(got) != 1 {
		t.Fatalf("client A received %d payloads, want 1", len(got))
	}

	var decoded Alert
	if err := json.Unmarshal(got[0], &decoded); err != nil {
		t.Fatalf("unmarshal delivered payload: %v", err)
	}
	if decoded.ID != alert.ID || decoded.CameraID != alert.CameraID || !decoded.Timestamp.Equal(alert.Timestamp) {
		t.Errorf("delivered alert %+v, want %+v", decoded, alert)
	}

	if n := len(clientB.received()); n != 0 {
		t.Errorf("client B subscribed to camera 9 received %d payloads, want 0", n)
	}
}

func TestBroadcaster_WildcardReceivesAllCamerasInOrder(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, testLogger(), nil)

	clientC := &recordingHandle{}
	r.Subscribe(WildcardCamera, clientC)

	b.Publish(testAlert("1", CameraID("7")))
	b.Publish(testAlert("2", CameraID("9")))

	got := clientC.received()
	if len(got) != 2 {
		t.Fatalf("wildcard client received %d payloads, want 2", len(got))
	}
	var first, second Alert
	_ = json.Unmarshal(got[0], &first)
	_ = json.Unmarshal(got[1], &second)
	if first.ID != "1" || second.ID != "2" {
		t.Errorf("alerts out of order: got %s then %s", first.ID, second.ID)
	}
}

func TestBroadcaster_FailedHandleDoesNotAbortDelivery(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, testLogger(), nil)

	dead := &recordingHandle{fail: true}
	live := &recordingHandle{}
	r.Subscribe(CameraID("7"), dead)
	r.Subscribe(CameraID("7"), live)

	b.Publish(testAlert("1", CameraID("7")))

	if n := len(live.received()); n != 1 {
		t.Errorf("live handle received %d payloads, want 1", n)
	}

	// The failed handle must be dropped from every subscriber set.
	if got := r.SubscribersOf(CameraID("7")); containsHandle(got, dead) {
		t.Errorf("dead handle still subscribed after delivery failure")
	}

	// A later publish must not attempt delivery to it.
	dead.fail = false
	b.Publish(testAlert("2", CameraID("7")))
	if n := len(dead.received()); n != 0 {
		t.Errorf("dropped handle received %d payloads after removal, want 0", n)
	}
	if n := len(live.received()); n != 2 {
		t.Errorf("live handle received %d payloads, want 2", n)
	}
}

func TestBroadcaster_BroadcastCopyMatchesPersistedRecord(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, testLogger(), nil)

	client := &recordingHandle{}
	r.Subscribe(CameraID("5"), client)

	alert := Alert{
		ID:          "a-1",
		CameraID:    CameraID("5"),
		Timestamp:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		SnapshotURL: "/snapshots/snapshot_5_1.jpg",
		BoundingBoxes: []BoundingBox{
			{X: 10, Y: 20, W: 30, H: 40},
			{X: 50, Y: 60, W: 70, H: 80},
		},
	}
	b.Publish(alert)

	got := client.received()
	if len(got) != 1 {
		t.Fatalf("received %d payloads, want 1", len(got))
	}
	want, _ := json.Marshal(alert)
	if string(got[0]) != string(want) {
		t.Errorf("payload = %s, want %s", got[0], want)
	}
}

func TestBroadcaster_NoSubscribersIsNoOp(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, testLogger(), nil)
	b.Publish(testAlert("1", CameraID("7")))
}
