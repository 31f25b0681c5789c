package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rockguard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Notification store metrics
	NotificationsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_notifications_added_total",
			Help: "Notifications added to the store",
		},
		[]string{"type", "origin"}, // origin: api, generator, dispatch, seed
	)

	NotificationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_notifications_deleted_total",
			Help: "Notifications deleted from the store",
		},
	)

	NotificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rockguard_notifications_unread",
			Help: "Current number of unread notifications",
		},
	)

	NotificationSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rockguard_notification_subscribers",
			Help: "Current number of snapshot subscribers",
		},
	)

	// Synthetic generator
	GeneratorTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_generator_ticks_total",
			Help: "Synthetic generator ticks",
		},
	)

	GeneratorFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_generator_fired_total",
			Help: "Synthetic notifications produced, by template",
		},
		[]string{"template"},
	)

	// Alert dispatch
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_alerts_dispatched_total",
			Help: "Operator alerts dispatched, by severity",
		},
		[]string{"severity"},
	)

	// Event feed
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_events_emitted_total",
			Help: "Lifecycle events handed to the event feed",
		},
		[]string{"kind", "status"}, // status: queued, dropped
	)

	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rockguard_worker_queue_size",
			Help: "Current size of the event queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rockguard_worker_queue_capacity",
			Help: "Capacity of the event queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_worker_processed_total",
			Help: "Total number of events published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_worker_failed_total",
			Help: "Total number of events workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rockguard_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed, rejected
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rockguard_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rockguard_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	KafkaBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rockguard_kafka_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rockguard_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
