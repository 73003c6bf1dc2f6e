package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Graph runner
	NodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "graph",
			Name:      "node_executions_total",
			Help:      "Total node executions by outcome",
		},
		[]string{"node", "status"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsroom",
			Subsystem: "graph",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"node"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "graph",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome",
		},
		[]string{"pipeline", "status"},
	)

	// Backoff retrier
	RetryWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "retry",
			Name:      "waits_total",
			Help:      "Total waits scheduled after rate-limited attempts",
		},
		[]string{"operation"},
	)

	// Tools and search
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total tool invocations by outcome",
		},
		[]string{"tool", "status"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search provider requests",
		},
		[]string{"provider", "status"},
	)

	SearchCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "search",
			Name:      "cache_hits_total",
			Help:      "Search queries answered from the cache",
		},
	)

	// HTTP
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsroom",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
