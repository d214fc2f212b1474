package eventlog

import "github.com/prometheus/client_golang/prometheus"

var (
	recordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_eventlog_recorded_total",
			Help: "Detection events appended to the log, by emotion.",
		},
		[]string{"emotion"},
	)
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_eventlog_dropped_total",
			Help: "Observations dropped before reaching the log, by reason.",
		},
		[]string{"reason"},
	)
	unknownTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stressvision_eventlog_unknown_total",
			Help: "Recorded events whose identity could not be resolved.",
		},
	)
	prunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stressvision_eventlog_pruned_total",
			Help: "Detection events removed by the retention sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(recordedTotal)
	prometheus.MustRegister(droppedTotal)
	prometheus.MustRegister(unknownTotal)
	prometheus.MustRegister(prunedTotal)
}
