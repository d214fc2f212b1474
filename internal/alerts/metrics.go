package alerts

import "github.com/prometheus/client_golang/prometheus"

var (
	triggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_alerts_triggered_total",
			Help: "Alerts created, by type and severity.",
		},
		[]string{"type", "severity"},
	)
	suppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_alerts_suppressed_total",
			Help: "Alerts suppressed by the cooldown, by type.",
		},
		[]string{"type"},
	)
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_alerts_transitions_total",
			Help: "Alert state transitions, by target state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(triggeredTotal)
	prometheus.MustRegister(suppressedTotal)
	prometheus.MustRegister(transitionsTotal)
}
