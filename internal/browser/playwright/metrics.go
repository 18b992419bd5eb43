package playwright

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/xbrowse/internal/model"
)

// Metric label values for launch results.
const (
	resultLaunched  = "launched"
	resultTransient = "transient"
	resultPermanent = "permanent"
)

var (
	launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xbrowse_playwright_launch_seconds",
			Help:    "Duration from launch request to a usable page, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	activeBrowsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbrowse_playwright_active_browsers",
			Help: "Number of browser processes currently held open by the driver.",
		},
	)

	closeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xbrowse_playwright_close_seconds",
			Help:    "Duration of browser teardown, graceful or forced, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	launchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbrowse_playwright_launches_total",
			Help: "Total number of browser launch attempts by engine and result.",
		},
		[]string{"engine", "result"},
	)
)

func init() {
	prometheus.MustRegister(launchDuration)
	prometheus.MustRegister(activeBrowsers)
	prometheus.MustRegister(closeDuration)
	prometheus.MustRegister(launchesTotal)

	for _, e := range []string{model.EngineChrome, model.EngineChromium, model.EngineEdge, model.EngineFirefox, model.EngineWebKit} {
		launchesTotal.WithLabelValues(e, resultLaunched)
		launchesTotal.WithLabelValues(e, resultTransient)
		launchesTotal.WithLabelValues(e, resultPermanent)
	}
}
