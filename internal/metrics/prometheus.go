package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

// Publish metrics
var (
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_publish_total",
			Help: "Total number of publish requests by outcome",
		},
		[]string{"outcome"}, // fresh, replayed, invalid, error
	)

	PublishRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_publish_recipients",
			Help:    "Number of delivery tasks created per published issue",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// Idempotency metrics
var (
	IdempotencyConflictWaitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_conflict_waits_total",
			Help: "Total number of requests that found a concurrent record for the same key",
		},
	)

	IdempotencyCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_cache_lookups_total",
			Help: "Replay cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	IdempotencyPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_records_purged_total",
			Help: "Total number of completed idempotency records deleted",
		},
	)
)

// Delivery worker metrics
var (
	WorkerEmptyPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_worker_empty_polls_total",
			Help: "Total number of dequeue attempts that found no task",
		},
	)

	WorkerErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_worker_errors_total",
			Help: "Total number of worker iterations that ended in an error",
		},
	)

	DeliverySendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of outbound email sends",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Mail sink metrics
var (
	MailSinkMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sink_messages_total",
			Help: "Total number of messages received by the development mail sink",
		},
		[]string{"result"}, // stored, rejected, error
	)

	MailSinkActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_sink_active_sessions",
			Help: "Number of open SMTP sessions on the mail sink",
		},
	)
)
