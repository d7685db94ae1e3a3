package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmq",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of handled bus requests",
		},
		[]string{"queue", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmq",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Duration of bus request handling in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	workersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmq",
			Subsystem: "dispatch",
			Name:      "workers",
			Help:      "Active workers per queue",
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, workersGauge)
}
