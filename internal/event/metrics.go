package event

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_events_published_total",
			Help: "Events published on the bus by topic.",
		},
		[]string{"topic"},
	)
	panicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_event_handler_panics_total",
			Help: "Recovered event handler panics by topic.",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(publishedTotal, panicsTotal)
}
