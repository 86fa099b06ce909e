package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the webhook backend.
//
// Everything registers against the Registerer passed to NewMetrics so tests
// can use an isolated registry.
type Metrics struct {
	// WebhookRequests counts inbound webhook deliveries.
	// Labels: endpoint (voice|respond|status|email), outcome (ok|rejected|error)
	WebhookRequests *prometheus.CounterVec

	// AIRequestDuration measures AI gateway call latency in seconds.
	// Labels: provider, model
	AIRequestDuration *prometheus.HistogramVec

	// AIRequests counts AI gateway calls.
	// Labels: provider, model, status (success|error)
	AIRequests *prometheus.CounterVec

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions prometheus.Gauge

	// SessionsSwept counts sessions reclaimed by the expiry sweep.
	SessionsSwept prometheus.Counter

	// EmailsProcessed counts inbound email ingestions.
	// Labels: status (success|error)
	EmailsProcessed *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxbridge_webhook_requests_total",
				Help: "Inbound webhook deliveries by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		AIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxbridge_ai_request_duration_seconds",
				Help:    "AI gateway request latency.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		AIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxbridge_ai_requests_total",
				Help: "AI gateway requests by provider, model, and status.",
			},
			[]string{"provider", "model", "status"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voxbridge_active_sessions",
				Help: "Number of live call sessions.",
			},
		),
		SessionsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voxbridge_sessions_swept_total",
				Help: "Sessions reclaimed by the inactivity sweep.",
			},
		),
		EmailsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxbridge_emails_processed_total",
				Help: "Inbound emails processed by status.",
			},
			[]string{"status"},
		),
	}
}
