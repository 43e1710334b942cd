// Package telemetry provides application-level observability for the Code
// Supporter backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<CS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped by a Prometheus server. It
// is NOT served by the Gin router and requires no authentication, so keep the
// port off the public network.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template such as
// /api/conversations/:conversation_id) rather than the raw request URL to
// prevent unbounded label cardinality from user-supplied path segments.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the
// HTTP server starts listening, or use an exported var directly:
//
//	telemetry.ChatCompletionsTotal.WithLabelValues("stream", "ok").Inc()
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Chat completion metrics.
//
// ChatCompletionsTotal is a CounterVec with labels {mode, outcome}. mode is
// "sync", "stream", or "public"; outcome is "ok" or "error".
//
// ChatCompletionDuration measures the full round trip to the language model
// provider, including streaming time for SSE responses. Buckets reach 120 s
// because long generations are normal.
//
// Example PromQL queries:
//   - Completion error rate:  sum(rate(chat_completions_total{outcome="error"}[5m])) / sum(rate(chat_completions_total[5m]))
//   - p95 generation time:    histogram_quantile(0.95, sum by (le) (rate(chat_completion_duration_seconds_bucket[5m])))
var (
	ChatCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_completions_total",
			Help: "Total number of chat completion requests, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	ChatCompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_completion_duration_seconds",
			Help:    "Duration of chat completion round trips to the model provider.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Storage metrics.
//
// StorageBackendSelected is a GaugeVec with label {kind} ("mongo" or "file").
// Exactly one series holds 1 after startup; dashboards and alerts can tell at
// a glance which backend a deployment runs on.
//
// StorageFallbacksTotal counts startups that wanted the document database but
// fell back to file storage. Any increase is worth an alert: the fallback is
// permanent until restart.
var (
	StorageBackendSelected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storage_backend_selected",
			Help: "Storage backend chosen at startup; the active kind holds 1.",
		},
		[]string{"kind"},
	)

	StorageFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_fallbacks_total",
			Help: "Startups that fell back from the document database to file storage.",
		},
	)
)

// APIKeyVerificationsTotal is a CounterVec with label {result} ("accepted" or
// "rejected"). A rising rejected rate usually means a disabled or deleted key
// is still deployed in some integration.
//
// Example PromQL queries:
//   - Rejection rate:  rate(api_key_verifications_total{result="rejected"}[15m])
var APIKeyVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "api_key_verifications_total",
		Help: "Total number of API key verification attempts, by result.",
	},
	[]string{"result"},
)

// MarkStorageBackend records which backend Open selected. Call it once at
// startup; it zeroes the other kind so a restart that flips backends does not
// leave both series at 1.
func MarkStorageBackend(kind string) {
	for _, k := range []string{"mongo", "file"} {
		v := 0.0
		if k == kind {
			v = 1
		}
		StorageBackendSelected.WithLabelValues(k).Set(v)
	}
}
