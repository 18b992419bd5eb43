package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbrowse_unit_outcomes_total",
			Help: "Total number of recorded unit outcomes by engine and status.",
		},
		[]string{"engine", "status"},
	)

	unitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xbrowse_unit_duration_seconds",
			Help:    "Duration of test execution per unit, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"engine"},
	)

	unitsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbrowse_units_in_flight",
			Help: "Number of units currently holding a worker slot.",
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xbrowse_run_duration_seconds",
			Help:    "Wall time of completed runs, in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(outcomesTotal)
	prometheus.MustRegister(unitDuration)
	prometheus.MustRegister(unitsInFlight)
	prometheus.MustRegister(runDuration)
}
