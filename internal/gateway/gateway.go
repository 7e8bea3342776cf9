package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"skylark/internal/alerting"
	"skylark/internal/platform/metrics"
)

// Gateway upgrades dashboard connections to websockets and registers them as
// alert subscribers. It is a pure transport adapter: it owns no alert data
// and makes no authorization decisions beyond what connection establishment
// already enforced.
type Gateway struct {
	registry *alerting.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New returns a Gateway registering connections in registry. Metrics may be
// nil to disable metric recording (e.g. in tests).
func New(registry *alerting.Registry, log *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		registry: registry,
		log:      log,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from the same origin in production;
			// cross-origin policy is enforced at the reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws. A cameraId query parameter subscribes the
// connection immediately; clients may also (or instead) send in-band
// {"type":"subscribe","cameraId":...} messages afterwards. The reserved id
// "all" subscribes to every camera's alerts.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, g.registry, g.log)

	if cameraID := alerting.CameraID(r.URL.Query().Get("cameraId")); cameraID != "" {
		g.registry.Subscribe(cameraID, c)
		g.log.Debug("client subscribed on connect", slog.String("camera_id", string(cameraID)))
	}

	if g.metrics != nil {
		g.metrics.IncWSConnections()
	}
	c.start()
}
