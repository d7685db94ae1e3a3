package engine

import "github.com/prometheus/client_golang/prometheus"

var engineCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "llmq",
		Subsystem: "engine",
		Name:      "calls_total",
		Help:      "Total number of model runtime calls by operation",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(engineCalls)
}
