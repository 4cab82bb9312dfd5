package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for dataset loading and dashboard rendering.
type Metrics struct {
	DatasetLoads        *prometheus.CounterVec // labels: outcome={success,not_found,parse_error,error}
	DatasetLoadDuration prometheus.Histogram
	DatasetRows         *prometheus.GaugeVec   // labels: table
	SectionFailures     *prometheus.CounterVec // labels: section
	DashboardRenders    *prometheus.CounterVec // labels: pipeline
	GeocodeRequests     *prometheus.CounterVec // labels: outcome={success,error,empty,cache_hit}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatasetLoads,
		m.DatasetLoadDuration,
		m.DatasetRows,
		m.SectionFailures,
		m.DashboardRenders,
		m.GeocodeRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citibike_dashboard",
			Name:      "dataset_loads_total",
			Help:      "Dataset load attempts by outcome.",
		}, []string{"outcome"}),
		DatasetLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citibike_dashboard",
			Name:      "dataset_load_duration_seconds",
			Help:      "Time spent loading and parsing all input resources.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DatasetRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "citibike_dashboard",
			Name:      "dataset_rows",
			Help:      "Rows held in the dataset cache per table.",
		}, []string{"table"}),
		SectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citibike_dashboard",
			Name:      "section_failures_total",
			Help:      "Dashboard sections that failed to compute.",
		}, []string{"section"}),
		DashboardRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citibike_dashboard",
			Name:      "dashboard_computations_total",
			Help:      "Filter and aggregate passes by pipeline.",
		}, []string{"pipeline"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citibike_dashboard",
			Name:      "geocode_requests_total",
			Help:      "Station address lookups by outcome.",
		}, []string{"outcome"}),
	}
}
