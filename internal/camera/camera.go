package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"skylark/internal/alerting"
)

// Camera mirrors the dashboard's camera record, reduced to the fields the
// coordination core needs.
type Camera struct {
	ID                   alerting.CameraID `json:"id"`
	OwnerID              string            `json:"ownerId"`
	Name                 string            `json:"name"`
	Location             string            `json:"location,omitempty"`
	RTSPURL              string            `json:"rtspUrl"`
	Enabled              bool              `json:"isEnabled"`
	FaceDetectionEnabled bool              `json:"faceDetectionEnabled"`
}

// ErrNotFound is returned both for unknown cameras and for cameras the
// caller does not own; the two cases are deliberately indistinguishable so
// camera ids cannot be probed.
var ErrNotFound = errors.New("camera not found")

// Store is the camera lookup boundary. The dashboard backs this with its
// relational store; the core only needs ownership-checked reads.
type Store interface {
	// OwnedCamera returns the camera only if it exists and belongs to
	// ownerID; otherwise ErrNotFound.
	OwnedCamera(ctx context.Context, ownerID string, id alerting.CameraID) (Camera, error)
}

// InMemoryStore is an in-memory Store used to run the binary and the tests
// without the external store.
type InMemoryStore struct {
	mu      sync.RWMutex
	cameras map[alerting.CameraID]Camera
}

// NewInMemoryStore returns a new empty in-memory camera store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cameras: make(map[alerting.CameraID]Camera)}
}

// Put inserts or replaces a camera record.
func (s *InMemoryStore) Put(c Camera) {
	s.mu.Lock()
	s.cameras[c.ID] = c
	s.mu.Unlock()
}

// OwnedCamera implements Store.OwnedCamera.
func (s *InMemoryStore) OwnedCamera(_ context.Context, ownerID string, id alerting.CameraID) (Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cameras[id]
	if !ok || c.OwnerID != ownerID {
		return Camera{}, ErrNotFound
	}
	return c, nil
}

// LoadFile reads a JSON array of cameras from path into the store and
// returns the number loaded. Used to seed the in-memory store from
// configuration.
func (s *InMemoryStore) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read cameras file: %w", err)
	}

	var cameras []Camera
	if err := json.Unmarshal(data, &cameras); err != nil {
		return 0, fmt.Errorf("parse cameras file: %w", err)
	}

	for _, c := range cameras {
		if c.ID == "" {
			return 0, fmt.Errorf("camera entry missing id")
		}
		s.Put(c)
	}
	return len(cameras), nil
}
