// Package metrics holds the Prometheus collectors shared by the bot and the
// dashboard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wheelbot"

var (
	wheelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wheels_created_total",
		Help:      "Wheels persisted after a completed rating session",
	})

	// Labels: style (sectors, legacy, comparison)
	renderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chart",
		Name:      "render_failures_total",
		Help:      "Chart rendering failures by style",
	}, []string{"style"})

	// Labels: provider, kind (wheel, comparison), outcome (success, error)
	analysisAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "attempts_total",
		Help:      "LLM analysis attempts by provider and outcome",
	}, []string{"provider", "kind", "outcome"})

	analysisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "latency_seconds",
		Help:      "LLM analysis latency in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "kind"})

	unparsableLabels = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unparsable_labels_total",
		Help:      "Wheel names that could not be read as a month label",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Wheel-building sessions currently in progress",
	})

	// Labels: route, status
	dashboardRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "requests_total",
		Help:      "Dashboard HTTP requests by route and status code",
	}, []string{"route", "status"})
)

func RecordWheelCreated() {
	wheelsCreated.Inc()
}

// RecordRenderFailure counts a failed chart render for the given style.
func RecordRenderFailure(style string) {
	renderFailures.WithLabelValues(style).Inc()
}

// RecordAnalysis records one provider call. kind is "wheel" or "comparison".
func RecordAnalysis(provider, kind string, durationSec float64, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	analysisAttempts.WithLabelValues(provider, kind, outcome).Inc()
	analysisLatency.WithLabelValues(provider, kind).Observe(durationSec)
}

func RecordUnparsableLabels(n int) {
	if n > 0 {
		unparsableLabels.Add(float64(n))
	}
}

func SessionStarted() { activeSessions.Inc() }
func SessionEnded()   { activeSessions.Dec() }

func RecordDashboardRequest(route, status string) {
	dashboardRequests.WithLabelValues(route, status).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
