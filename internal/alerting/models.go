package alerting

import "time"

// CameraID identifies a camera and is the routing key for subscriptions
// and alert delivery.
type CameraID string

// WildcardCamera is the reserved camera id that subscribes a handle to
// every camera's alerts (the dashboard's combined feed).
const WildcardCamera CameraID = "all"

// BoundingBox is one detected face region, in worker frame coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Alert is a single detection event reported by the external worker.
// Alerts are immutable once created; the broadcast payload is the persisted
// record, field for field.
type Alert struct {
	ID            string        `json:"id"`
	CameraID      CameraID      `json:"cameraId"`
	Timestamp     time.Time     `json:"timestamp"`
	SnapshotURL   string        `json:"snapshotUrl,omitempty"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes,omitempty"`
}

// NewAlert is the ingestion payload before the store assigns an id and
// timestamp. This matches the JSON the worker posts to /alerts.
type NewAlert struct {
	CameraID      CameraID      `json:"cameraId"`
	SnapshotURL   string        `json:"snapshotUrl,omitempty"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes,omitempty"`
}
