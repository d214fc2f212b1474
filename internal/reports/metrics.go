package reports

import "github.com/prometheus/client_golang/prometheus"

var (
	generatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stressvision_reports_generated_total",
			Help: "Reports successfully written.",
		},
	)
	failedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stressvision_reports_failed_total",
			Help: "Report generation failures by stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(generatedTotal, failedTotal)
}
