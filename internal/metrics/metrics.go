// Package metrics registers the Prometheus metrics used by the gateway.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// RequestsTotal counts completed pipeline invocations labelled by
	// endpoint and outcome ("success", "error", "rejected", "cache_hit").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of pipeline invocations processed by the gateway.",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration observes end-to-end invocation latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end pipeline invocation duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	// WindowsProcessed counts the total number of window-geometry entries
	// carried through completed invocations.
	WindowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_windows_processed_total",
			Help: "Total window-geometry entries processed across all invocations.",
		},
		[]string{"endpoint"},
	)

	// DownstreamErrors counts errors broken down by downstream service and
	// error type ("response_error", "circuit_open", "timeout", "connection").
	DownstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_downstream_errors_total",
			Help: "Total downstream service errors by type.",
		},
		[]string{"service", "error_type"},
	)

	// CircuitBreakerState tracks per-service circuit breaker state as a gauge:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per downstream service (0=closed 1=open 2=half_open).",
		},
		[]string{"service"},
	)

	// RateLimitRejections counts invocations rejected by rate limiting,
	// labelled by key_type ("ip", "api_key", "plugin").
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Total invocations rejected by rate limiting.",
		},
		[]string{"key_type"},
	)
)
