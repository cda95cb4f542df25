package resolution

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_resolution_builds_total",
			Help: "Number of resolution builds by result.",
		},
		[]string{"result"},
	)

	buildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kernel_resolution_build_duration_seconds",
			Help:    "Time taken to bind, order and start the units of a build.",
			Buckets: prometheus.DefBuckets,
		},
	)

	bindingLookups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_resolution_binding_lookups_total",
			Help: "Number of registry lookups performed while binding references.",
		},
	)

	unitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_resolution_unit_transitions_total",
			Help: "Number of unit state transitions by target state.",
		},
		[]string{"state"},
	)

	activeUnits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kernel_resolution_active_units",
			Help: "Number of units currently active.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		buildsTotal,
		buildDuration,
		bindingLookups,
		unitTransitions,
		activeUnits,
	)
}
