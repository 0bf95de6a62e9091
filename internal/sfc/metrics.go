package sfc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "sfc",
		Name:      "runs_started_total",
		Help:      "Chart runs started.",
	})

	runsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "sfc",
		Name:      "runs_ended_total",
		Help:      "Chart runs ended by outcome (finished, cancelled).",
	}, []string{"outcome"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfcd",
		Subsystem: "sfc",
		Name:      "active_runs",
		Help:      "Chart runs currently executing.",
	})

	nodeExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfcd",
		Subsystem: "sfc",
		Name:      "node_executions_total",
		Help:      "Node executions by kind and outcome.",
	}, []string{"kind", "outcome"})

	nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfcd",
		Subsystem: "sfc",
		Name:      "node_duration_seconds",
		Help:      "Wall time of node executions.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"kind"})
)
