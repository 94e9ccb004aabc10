package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery queue metrics for Prometheus monitoring.
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_queue_tasks_pending",
			Help: "Number of pending delivery tasks at the last depth check",
		},
	)

	TasksEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_queue_tasks_enqueued_total",
			Help: "Total number of delivery tasks enqueued",
		},
	)

	TasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_queue_tasks_processed_total",
			Help: "Total number of delivery tasks removed by outcome",
		},
		[]string{"outcome"}, // sent, failed, skipped
	)

	TaskProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_queue_task_processing_duration_seconds",
			Help:    "Duration from claim to completion of a delivery task",
			Buckets: prometheus.DefBuckets,
		},
	)
)
