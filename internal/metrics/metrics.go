// Package metrics provides interfaces and implementations for collecting
// mail receiver metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for recording mail receiver metrics.
type Collector interface {
	// Connection metrics (no domain - happens before HELO)
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Command metrics (no domain - too granular)
	CommandProcessed(command string)

	// Message metrics (recipient domain first)
	MessageReceived(recipientDomain string, sizeBytes int64)
	MessageRejected(recipientDomain string, reason string)
	RecipientDiscarded(recipientDomain string)
	MessageStored(recipientDomain string)
	AttachmentStored(sizeBytes int64)

	// Webhook metrics
	// mode is "configured" or "global"; result is "success", "failure" or "skipped"
	WebhookDelivered(mode string, result string)
	WebhookAttempt(statusClass string)

	// Side channel metrics; result is "success" or "failure"
	EventPublished(result string)
	MessageArchived(result string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}

// Config selects and places the metrics endpoint.
type Config struct {
	Enabled bool
	Address string
	Path    string
}

// New returns a Collector and the Server exposing it. Both are no-ops when
// cfg.Enabled is false. Each call uses its own registry so stacks built
// side by side in one process do not collide.
func New(cfg Config) (Collector, Server) {
	if !cfg.Enabled {
		return &NoopCollector{}, &NoopServer{}
	}
	reg := prometheus.NewRegistry()
	return NewPrometheusCollector(reg), NewPrometheusServer(cfg.Address, cfg.Path, reg)
}
