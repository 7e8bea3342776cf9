package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the alert fan-out and
// stream-lifecycle service.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	alertsIngestedTotal  prometheus.Counter
	alertsDeliveredTotal prometheus.Counter
	deliveriesDropped    prometheus.Counter
	streamStartsTotal    prometheus.Counter
	streamStopsTotal     prometheus.Counter
	workerErrorsTotal    prometheus.Counter
	wsConnectionsTotal   prometheus.Counter
	subscribedClients    prometheus.Gauge
}

// New creates and registers the service's Prometheus metrics on a private
// registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		alertsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_alerts_ingested_total",
			Help: "Total number of detection alerts accepted from the worker",
		}),
		alertsDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_alerts_delivered_total",
			Help: "Total number of alert deliveries enqueued to subscribers",
		}),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_deliveries_dropped_total",
			Help: "Total number of alert deliveries dropped because the subscriber was gone or backed up",
		}),
		streamStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_stream_starts_total",
			Help: "Total number of acknowledged stream start requests",
		}),
		streamStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_stream_stops_total",
			Help: "Total number of acknowledged stream stop requests",
		}),
		workerErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_worker_errors_total",
			Help: "Total number of failed control calls to the detection worker",
		}),
		wsConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylark_ws_connections_total",
			Help: "Total number of accepted websocket connections",
		}),
		subscribedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skylark_subscribed_clients",
			Help: "Number of websocket clients with at least one camera subscription",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.alertsIngestedTotal,
		m.alertsDeliveredTotal,
		m.deliveriesDropped,
		m.streamStartsTotal,
		m.streamStopsTotal,
		m.workerErrorsTotal,
		m.wsConnectionsTotal,
		m.subscribedClients,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncAlertsIngested increments the ingested alert counter.
func (m *Metrics) IncAlertsIngested() {
	m.alertsIngestedTotal.Inc()
}

// IncAlertsDelivered increments the delivered alert counter.
func (m *Metrics) IncAlertsDelivered() {
	m.alertsDeliveredTotal.Inc()
}

// IncDeliveriesDropped increments the dropped delivery counter.
func (m *Metrics) IncDeliveriesDropped() {
	m.deliveriesDropped.Inc()
}

// IncStreamStarts increments the acknowledged stream start counter.
func (m *Metrics) IncStreamStarts() {
	m.streamStartsTotal.Inc()
}

// IncStreamStops increments the acknowledged stream stop counter.
func (m *Metrics) IncStreamStops() {
	m.streamStopsTotal.Inc()
}

// IncWorkerErrors increments the failed worker control call counter.
func (m *Metrics) IncWorkerErrors() {
	m.workerErrorsTotal.Inc()
}

// IncWSConnections increments the accepted websocket connection counter.
func (m *Metrics) IncWSConnections() {
	m.wsConnectionsTotal.Inc()
}

// SetSubscribedClients sets the subscribed client gauge.
func (m *Metrics) SetSubscribedClients(n int) {
	m.subscribedClients.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// the subscribed client count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
