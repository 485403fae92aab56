package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Message metrics
	messagesReceivedTotal    *prometheus.CounterVec
	messagesRejectedTotal    *prometheus.CounterVec
	messagesSizeBytes        prometheus.Histogram
	recipientsDiscardedTotal *prometheus.CounterVec
	messagesStoredTotal      *prometheus.CounterVec
	attachmentsSizeBytes     prometheus.Histogram

	// Webhook metrics
	webhooksTotal        *prometheus.CounterVec
	webhookAttemptsTotal *prometheus.CounterVec

	// Side channel metrics
	eventsPublishedTotal  *prometheus.CounterVec
	messagesArchivedTotal *prometheus.CounterVec
}

var sizeBuckets = []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opentrashmail_connections_total",
			Help: "Total number of SMTP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opentrashmail_connections_active",
			Help: "Number of currently active SMTP connections.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opentrashmail_tls_connections_total",
			Help: "Total number of TLS connections established.",
		}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_commands_total",
			Help: "Total number of SMTP commands processed.",
		}, []string{"command"}),

		messagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_messages_received_total",
			Help: "Total number of messages received per recipient domain.",
		}, []string{"recipient_domain"}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_messages_rejected_total",
			Help: "Total number of messages or recipients rejected.",
		}, []string{"recipient_domain", "reason"}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opentrashmail_messages_size_bytes",
			Help:    "Size of received messages in bytes.",
			Buckets: sizeBuckets,
		}),
		recipientsDiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_recipients_discarded_total",
			Help: "Total number of recipients silently dropped by domain policy.",
		}, []string{"recipient_domain"}),
		messagesStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_messages_stored_total",
			Help: "Total number of message records written to mailboxes.",
		}, []string{"recipient_domain"}),
		attachmentsSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opentrashmail_attachments_size_bytes",
			Help:    "Size of stored attachments in bytes.",
			Buckets: sizeBuckets,
		}),

		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_webhooks_total",
			Help: "Total number of webhook notifications by mode and outcome.",
		}, []string{"mode", "result"}),
		webhookAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_webhook_attempts_total",
			Help: "Total number of webhook HTTP attempts by response class.",
		}, []string{"status"}),

		eventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_events_published_total",
			Help: "Total number of stored-message events published.",
		}, []string{"result"}),
		messagesArchivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opentrashmail_messages_archived_total",
			Help: "Total number of raw messages archived to object storage.",
		}, []string{"result"}),
	}

	// Register all metrics
	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.commandsTotal,
		c.messagesReceivedTotal,
		c.messagesRejectedTotal,
		c.messagesSizeBytes,
		c.recipientsDiscardedTotal,
		c.messagesStoredTotal,
		c.attachmentsSizeBytes,
		c.webhooksTotal,
		c.webhookAttemptsTotal,
		c.eventsPublishedTotal,
		c.messagesArchivedTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// MessageReceived increments the message received counter and observes message size.
func (c *PrometheusCollector) MessageReceived(recipientDomain string, sizeBytes int64) {
	c.messagesReceivedTotal.WithLabelValues(recipientDomain).Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageRejected increments the message rejected counter.
func (c *PrometheusCollector) MessageRejected(recipientDomain string, reason string) {
	c.messagesRejectedTotal.WithLabelValues(recipientDomain, reason).Inc()
}

// RecipientDiscarded increments the discarded recipient counter.
func (c *PrometheusCollector) RecipientDiscarded(recipientDomain string) {
	c.recipientsDiscardedTotal.WithLabelValues(recipientDomain).Inc()
}

// MessageStored increments the stored message counter.
func (c *PrometheusCollector) MessageStored(recipientDomain string) {
	c.messagesStoredTotal.WithLabelValues(recipientDomain).Inc()
}

// AttachmentStored observes the attachment size.
func (c *PrometheusCollector) AttachmentStored(sizeBytes int64) {
	c.attachmentsSizeBytes.Observe(float64(sizeBytes))
}

// WebhookDelivered increments the webhook outcome counter.
func (c *PrometheusCollector) WebhookDelivered(mode string, result string) {
	c.webhooksTotal.WithLabelValues(mode, result).Inc()
}

// WebhookAttempt increments the webhook attempt counter.
func (c *PrometheusCollector) WebhookAttempt(statusClass string) {
	c.webhookAttemptsTotal.WithLabelValues(statusClass).Inc()
}

// EventPublished increments the published event counter.
func (c *PrometheusCollector) EventPublished(result string) {
	c.eventsPublishedTotal.WithLabelValues(result).Inc()
}

// MessageArchived increments the archive counter.
func (c *PrometheusCollector) MessageArchived(result string) {
	c.messagesArchivedTotal.WithLabelValues(result).Inc()
}
