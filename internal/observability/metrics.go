package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce         sync.Once
	nodeCompletionsTotal *prometheus.CounterVec
	unlockEventsTotal    *prometheus.CounterVec
	pathRecomputeSeconds prometheus.Histogram
	reportRequestsTotal  *prometheus.CounterVec
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the
// progression engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		nodeCompletionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progression_node_completions_total",
			Help: "Node completion calls by outcome.",
		}, []string{"outcome"})

		unlockEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progression_unlock_events_total",
			Help: "Cascading unlock events by kind.",
		}, []string{"kind"})

		pathRecomputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "path_recompute_seconds",
			Help:    "Latency distribution for path aggregate recomputation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})

		reportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "path_report_requests_total",
			Help: "Path progress report requests by cache result.",
		}, []string{"result"})

		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			nodeCompletionsTotal,
			unlockEventsTotal,
			pathRecomputeSeconds,
			reportRequestsTotal,
			apiRequestsTotal,
			apiLatencySeconds,
		)
	})
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}

// NodeCompletions exposes the completion outcome counter.
func NodeCompletions() *prometheus.CounterVec {
	RegisterMetrics()
	return nodeCompletionsTotal
}

// UnlockEvents exposes the cascading unlock counter.
func UnlockEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return unlockEventsTotal
}

// PathRecomputeLatency exposes the aggregate recompute histogram.
func PathRecomputeLatency() prometheus.Histogram {
	RegisterMetrics()
	return pathRecomputeSeconds
}

// ReportRequests exposes the report cache result counter.
func ReportRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return reportRequestsTotal
}

// APIRequests exposes the counter for HTTP requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for HTTP requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}
