package alerting

import (
	"encoding/json"
	"log/slog"

	"skylark/internal/platform/metrics"
)

// Broadcaster fans persisted alerts out to the handles subscribed to the
// alert's camera and to the wildcard feed.
type Broadcaster struct {
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewBroadcaster returns a Broadcaster using the given registry. Metrics may
// be nil to disable metric recording (e.g. in tests).
func NewBroadcaster(registry *Registry, log *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{registry: registry, log: log, metrics: m}
}

// Publish delivers alert to every currently subscribed handle for the
// alert's camera. Publish never returns an error: a handle that cannot
// accept the payload is logged, dropped from the registry, and delivery to
// the remaining handles continues. Each Deliver is a non-blocking enqueue,
// so the ingestion path never waits on a slow client and per-camera order
// is preserved.
func (b *Broadcaster) Publish(alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		b.log.Error("marshal alert for broadcast failed",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()))
		return
	}

	for _, h := range b.registry.SubscribersOf(alert.CameraID) {
		if err := h.Deliver(payload); err != nil {
			b.log.Warn("dropping unreachable subscriber",
				slog.String("camera_id", string(alert.CameraID)),
				slog.String("error", err.Error()))
			b.registry.Unsubscribe(h)
			if b.metrics != nil {
				b.metrics.IncDeliveriesDropped()
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.IncAlertsDelivered()
		}
	}
}
