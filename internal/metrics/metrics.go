package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goals_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// ProgressUpdates counts progress updates by outcome: applied, skipped, reached.
	ProgressUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_progress_updates_total",
			Help: "Number of progress updates by outcome",
		},
		[]string{"outcome"},
	)

	// ChannelDeliveries counts per-channel delivery outcomes.
	ChannelDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_channel_deliveries_total",
			Help: "Notification channel deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	ChannelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goals_channel_delivery_duration_seconds",
			Help:    "Duration of a channel delivery including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// Notifications counts audit records by type and overall success.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_notifications_total",
			Help: "Dispatched goal notifications by type and overall success",
		},
		[]string{"type", "success"},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goals_notification_audit_failures_total",
			Help: "Notifications delivered but not persisted to the audit log",
		},
	)

	MonitorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_deadline_monitor_runs_total",
			Help: "Deadline monitor runs by result",
		},
		[]string{"result"},
	)

	MonitorRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goals_deadline_monitor_run_duration_seconds",
			Help:    "Duration of a deadline monitor run",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProjectionCalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goals_projection_calculations_total",
			Help: "Number of projection recalculations",
		},
	)

	// KafkaMessages counts consumed progress-delta messages by result.
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goals_kafka_messages_total",
			Help: "Consumed progress delta messages by result",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(
		RequestCount, RequestDuration,
		ProgressUpdates,
		ChannelDeliveries, ChannelDuration, Notifications, AuditWriteFailures,
		MonitorRuns, MonitorRunDuration,
		ProjectionCalculations,
		KafkaMessages,
	)
}
