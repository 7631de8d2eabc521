// Package metrics exposes Prometheus collectors for the control plane.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	provisionsTotal            *prometheus.CounterVec
	jobsRoutedTotal            *prometheus.CounterVec
	resultMessagesPushed       prometheus.Counter
	resultPushFailures         prometheus.Counter
	resultPushDisconnected     prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeConnections          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		provisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_provisions_total",
				Help: "Total provisioner invocations, labeled by action and outcome.",
			},
			[]string{"action", "outcome"},
		)

		jobsRoutedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_jobs_routed_total",
				Help: "Total job submissions through the router, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		resultMessagesPushed = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "controlplane_result_messages_pushed_total",
				Help: "Total result messages delivered to a live connection.",
			},
		)

		resultPushFailures = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "controlplane_result_push_failures_total",
				Help: "Total result messages dropped because no connection was registered.",
			},
		)

		resultPushDisconnected = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "controlplane_result_push_disconnected_total",
				Help: "Total stale connections cleaned up after the transport reported them gone.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlplane_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "controlplane_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeConnections = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "controlplane_active_connections",
				Help: "Number of client sessions currently registered for result push.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProvision increments the provisioner counter.
func ObserveProvision(action, outcome string) {
	if provisionsTotal == nil {
		return
	}
	provisionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveRoute increments the router counter for the given outcome.
func ObserveRoute(outcome string) {
	if jobsRoutedTotal == nil {
		return
	}
	jobsRoutedTotal.WithLabelValues(outcome).Inc()
}

// ObservePush increments the delivered-messages counter.
func ObservePush() {
	if resultMessagesPushed == nil {
		return
	}
	resultMessagesPushed.Inc()
}

// ObservePushFailure increments the unknown-recipient counter.
func ObservePushFailure() {
	if resultPushFailures == nil {
		return
	}
	resultPushFailures.Inc()
}

// ObserveDisconnected increments the stale-connection cleanup counter.
func ObserveDisconnected() {
	if resultPushDisconnected == nil {
		return
	}
	resultPushDisconnected.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncConnections increments the live-connections gauge.
func IncConnections() {
	if activeConnections == nil {
		return
	}
	activeConnections.Inc()
}

// DecConnections decrements the live-connections gauge.
func DecConnections() {
	if activeConnections == nil {
		return
	}
	activeConnections.Dec()
}
