package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paylink/reconciler/internal/port/outbound"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Reconciliation metrics
	WebhooksTotal         *prometheus.CounterVec
	TransitionsTotal      *prometheus.CounterVec
	StatusMismatchesTotal *prometheus.CounterVec

	// Provider metrics
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	ProviderRetriesTotal *prometheus.CounterVec
	ProviderBreakerState *prometheus.GaugeVec
}

// New creates a new Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "reconciler"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Reconciliation metrics
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "handled_total",
				Help:      "Total number of handled webhooks by outcome",
			},
			[]string{"rail", "leg", "outcome"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "transitions_total",
				Help:      "Total number of committed status transitions",
			},
			[]string{"from", "to"},
		),
		StatusMismatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "status_mismatches_total",
				Help:      "Webhooks whose claimed status differed from the provider's answer",
			},
			[]string{"rail", "leg"},
		),

		// Provider metrics
		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total number of provider calls",
			},
			[]string{"rail", "operation", "outcome"}, // outcome: success, rejected, circuit_open, error
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Provider call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"rail", "operation"},
		),
		ProviderRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Total number of retried provider calls",
			},
			[]string{"operation"},
		),
		ProviderBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per rail (0=closed, 1=half-open, 2=open)",
			},
			[]string{"rail"},
		),
	}
}

// Compile-time check
var _ outbound.MetricsPort = (*Metrics)(nil)

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveWebhook implements outbound.MetricsPort.
func (m *Metrics) ObserveWebhook(rail, leg, outcome string) {
	m.WebhooksTotal.WithLabelValues(rail, leg, outcome).Inc()
}

// ObserveTransition implements outbound.MetricsPort.
func (m *Metrics) ObserveTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveStatusMismatch implements outbound.MetricsPort.
func (m *Metrics) ObserveStatusMismatch(rail, leg string) {
	m.StatusMismatchesTotal.WithLabelValues(rail, leg).Inc()
}

// ObserveProviderRetry implements outbound.MetricsPort.
func (m *Metrics) ObserveProviderRetry(operation string) {
	m.ProviderRetriesTotal.WithLabelValues(operation).Inc()
}

// ObserveProviderCall records one guarded provider call.
func (m *Metrics) ObserveProviderCall(rail, operation, outcome string, duration time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(rail, operation, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(rail, operation).Observe(duration.Seconds())
}

// ObserveBreakerState records a breaker state change.
func (m *Metrics) ObserveBreakerState(rail, state string) {
	m.ProviderBreakerState.WithLabelValues(rail).Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
