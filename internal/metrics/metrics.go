// Package metrics exposes Prometheus instrumentation for the delivery
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhooksReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_webhooks_received_total",
			Help: "Total number of paid-order webhook deliveries received",
		},
	)

	WebhooksInvalidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_webhooks_invalid_total",
			Help: "Total number of webhook deliveries rejected for a bad signature",
		},
	)

	WebhooksSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_webhooks_skipped_total",
			Help: "Total number of webhook deliveries acknowledged without fulfillment",
		},
	)

	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_tokens_issued_total",
			Help: "Total number of download tokens issued",
		},
	)

	DownloadsServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_downloads_served_total",
			Help: "Total number of downloads served",
		},
	)

	DownloadsDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_downloads_denied_total",
			Help: "Total number of download attempts denied, by reason",
		},
		[]string{"reason"},
	)

	EmailsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_emails_sent_total",
			Help: "Total number of delivery emails sent",
		},
	)

	EmailsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_emails_failed_total",
			Help: "Total number of delivery emails that failed to send",
		},
	)

	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_audit_write_failures_total",
			Help: "Total number of audit events that could not be written",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bindery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Register registers all Prometheus metrics.
func Register() {
	prometheus.MustRegister(
		WebhooksReceivedTotal,
		WebhooksInvalidTotal,
		WebhooksSkippedTotal,
		TokensIssuedTotal,
		DownloadsServedTotal,
		DownloadsDeniedTotal,
		EmailsSentTotal,
		EmailsFailedTotal,
		AuditWriteFailuresTotal,
		RequestDuration,
	)
}
