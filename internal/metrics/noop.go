package metrics

import "context"

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished() {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(command string) {}

// MessageReceived is a no-op.
func (n *NoopCollector) MessageReceived(recipientDomain string, sizeBytes int64) {}

// MessageRejected is a no-op.
func (n *NoopCollector) MessageRejected(recipientDomain string, reason string) {}

// RecipientDiscarded is a no-op.
func (n *NoopCollector) RecipientDiscarded(recipientDomain string) {}

// MessageStored is a no-op.
func (n *NoopCollector) MessageStored(recipientDomain string) {}

// AttachmentStored is a no-op.
func (n *NoopCollector) AttachmentStored(sizeBytes int64) {}

// WebhookDelivered is a no-op.
func (n *NoopCollector) WebhookDelivered(mode string, result string) {}

// WebhookAttempt is a no-op.
func (n *NoopCollector) WebhookAttempt(statusClass string) {}

// EventPublished is a no-op.
func (n *NoopCollector) EventPublished(result string) {}

// MessageArchived is a no-op.
func (n *NoopCollector) MessageArchived(result string) {}

// NoopServer stands in for the metrics endpoint when metrics are disabled.
type NoopServer struct{}

// Start returns immediately.
func (n *NoopServer) Start(ctx context.Context) error { return nil }

// Shutdown returns immediately.
func (n *NoopServer) Shutdown(ctx context.Context) error { return nil }
