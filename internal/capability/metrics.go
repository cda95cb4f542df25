package capability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	liveRegistrations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kernel_capability_registrations",
			Help: "Number of live capability registrations by capability name.",
		},
		[]string{"capability"},
	)

	registrationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_capability_registration_errors_total",
			Help: "Number of rejected capability registrations by capability name and reason.",
		},
		[]string{"capability", "reason"},
	)

	lookupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_capability_lookups_total",
			Help: "Number of capability lookups by result.",
		},
		[]string{"result"},
	)

	unresolvedRequirements = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kernel_capability_unresolved_requirements",
			Help: "Number of declared requirements without a live provider in the last validation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		liveRegistrations,
		registrationErrors,
		lookupTotal,
		unresolvedRequirements,
	)
}
