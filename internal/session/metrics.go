package session

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for launch attempts.
const (
	attemptSucceeded = "succeeded"
	attemptFailed    = "failed"
)

var (
	launchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbrowse_session_launch_attempts_total",
			Help: "Total number of session launch attempts by engine and result.",
		},
		[]string{"engine", "result"},
	)

	acquireDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xbrowse_session_acquire_seconds",
			Help:    "Duration of session acquisition including retries, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"engine"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbrowse_sessions_active",
			Help: "Number of sessions acquired and not yet released.",
		},
	)

	teardownFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbrowse_session_teardown_failures_total",
			Help: "Total number of sessions whose teardown did not complete cleanly.",
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(launchAttemptsTotal)
	prometheus.MustRegister(acquireDuration)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(teardownFailuresTotal)
}
