package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "monitor",
		Name:      "samples_total",
		Help:      "Samples emitted by change detection.",
	})

	readFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "monitor",
		Name:      "read_failures_total",
		Help:      "Failed reads by mode (batch, single).",
	}, []string{"mode"})

	appendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "monitor",
		Name:      "append_failures_total",
		Help:      "Sample batches the sink rejected.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfcd",
		Subsystem: "monitor",
		Name:      "active_sessions",
		Help:      "Monitor sessions currently polling.",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sfcd",
		Subsystem: "monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Time to read all tracked variables once.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)
