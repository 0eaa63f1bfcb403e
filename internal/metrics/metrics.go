package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	ledgerOperations *prometheus.CounterVec
	creditsGranted   *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	chatTurns        *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genfoo_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genfoo_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genfoo_ledger_operations_total",
			Help: "Ledger mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		creditsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genfoo_credits_granted_total",
			Help: "Credits added to balances by source.",
		}, []string{"source"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genfoo_webhook_events_total",
			Help: "Webhook deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genfoo_chat_turns_total",
			Help: "Chat turns by model and outcome.",
		}, []string{"model", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genfoo_completion_upstream_duration_seconds",
			Help:    "Completion stream duration by model.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"model"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.httpRequests,
			m.httpDuration,
			m.ledgerOperations,
			m.creditsGranted,
			m.webhookEvents,
			m.chatTurns,
			m.upstreamDuration,
		)
	}
	return m
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) LedgerOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) CreditsGranted(source string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsGranted.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) WebhookEvent(source, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ChatTurn(model, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) ObserveUpstream(model string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}
