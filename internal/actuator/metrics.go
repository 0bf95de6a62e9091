package actuator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rampWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sfcd",
	Subsystem: "actuator",
	Name:      "writes_total",
	Help:      "Ramp writes by result (ok, failed, fallback).",
}, []string{"result"})
