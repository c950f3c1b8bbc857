package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// QueueDepth approximates the ready backlog per task kind, refreshed by
	// the worker's depth ticker.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tracking",
			Name:      "queue_depth",
			Help:      "Approximate number of ready refresh tasks per kind.",
		},
		[]string{"kind"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracking",
			Name:      "queue_processed_total",
			Help:      "Tasks processed, by kind and outcome (ok, retry, dlq).",
		},
		[]string{"kind", "status"},
	)
	QueueDLQSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tracking",
			Name:      "queue_dlq_size",
			Help:      "Dead-lettered tasks awaiting replay, per kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth, QueueProcessedTotal, QueueDLQSize)
}
