package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s2s_forecast"

// Metrics holds the Prometheus counters, histograms, and gauges for cube
// builds and queries.
type Metrics struct {
	// Cube build metrics.
	CubeBuilds        *prometheus.CounterVec // labels: outcome={success,error}
	CubeBuildDuration prometheus.Histogram
	CubeSteps         prometheus.Gauge
	CubeVariables     prometheus.Gauge
	CubeReady         prometheus.Gauge

	// Query metrics.
	Queries       *prometheus.CounterVec   // labels: operation, outcome={success,client_error,empty,error}
	QueryDuration *prometheus.HistogramVec // labels: operation
	QueryCache    *prometheus.CounterVec   // labels: operation, result={hit,miss}

	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.CubeBuilds,
		m.CubeBuildDuration,
		m.CubeSteps,
		m.CubeVariables,
		m.CubeReady,
		m.Queries,
		m.QueryDuration,
		m.QueryCache,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		CubeBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cube_builds_total",
			Help:      help("Cube builds by outcome."),
		}, []string{"outcome"}),
		CubeBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cube_build_duration_seconds",
			Help:      help("Duration of a complete load, normalize and reduce cycle."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CubeSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cube_steps",
			Help:      help("Forecast steps in the served cube."),
		}),
		CubeVariables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cube_variables",
			Help:      help("Variables in the served cube."),
		}),
		CubeReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cube_ready",
			Help:      help("1 when a cube is being served, 0 otherwise."),
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      help("Queries by operation and outcome."),
		}, []string{"operation", "outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      help("Query evaluation time in seconds."),
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"operation"}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      help("Query cache lookups by operation and result."),
		}, []string{"operation", "result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Cube lifecycle events published by outcome."),
		}, []string{"outcome"}),
	}
}
