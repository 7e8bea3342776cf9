package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentLimit caps RecentAlerts queries that do not ask for a
// specific limit.
const DefaultRecentLimit = 50

// AlertStore is the persistence boundary for alerts. The dashboard backs
// this with its relational store; the coordination core only needs create
// and recent-read access. No broadcast happens without a persisted record.
type AlertStore interface {
	// CreateAlert persists a new alert, assigning its id and timestamp, and
	// returns the stored record.
	CreateAlert(ctx context.Context, n NewAlert) (Alert, error)

	// RecentAlerts returns up to limit alerts, newest first. An empty or
	// wildcard cameraID returns alerts for all cameras.
	RecentAlerts(ctx context.Context, cameraID CameraID, limit int) ([]Alert, error)
}

// InMemoryAlertStore is an in-memory AlertStore used to run the binary and
// the tests without the external store.
type InMemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []Alert
}

// NewInMemoryAlertStore returns a new empty in-memory alert store.
func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{}
}

// CreateAlert implements AlertStore.CreateAlert.
func (s *InMemoryAlertStore) CreateAlert(_ context.Context, n NewAlert) (Alert, error) {
	alert := Alert{
		ID:            uuid.NewString(),
		CameraID:      n.CameraID,
		Timestamp:     time.Now().UTC(),
		SnapshotURL:   n.SnapshotURL,
		BoundingBoxes: n.BoundingBoxes,
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()

	return alert, nil
}

// RecentAlerts implements AlertStore.RecentAlerts.
func (s *InMemoryAlertStore) RecentAlerts(_ context.Context, cameraID CameraID, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.alerts[i]
		if cameraID != "" && cameraID != WildcardCamera && a.CameraID != cameraID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
