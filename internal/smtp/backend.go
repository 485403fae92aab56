// Package smtp adapts go-smtp to the ingestion handler: it accepts mail for
// any recipient on plaintext and implicit-TLS listeners and hands every
// completed DATA transaction to ingest.
package smtp

import (
	"context"
	"log/slog"

	"github.com/emersion/go-smtp"

	"github.com/abyssox/opentrashmail/internal/ingest"
	"github.com/abyssox/opentrashmail/internal/logging"
	"github.com/abyssox/opentrashmail/internal/metrics"
)

// Ingester consumes one envelope and reports the SMTP completion status.
type Ingester interface {
	Handle(ctx context.Context, env ingest.Envelope) *ingest.Result
}

// Backend implements the go-smtp Backend interface.
// It creates new sessions for each connection.
type Backend struct {
	hostname       string
	ingester       Ingester
	collector      metrics.Collector
	maxRecipients  int
	maxMessageSize int64
	logger         *slog.Logger
}

// BackendConfig holds configuration for creating a Backend.
type BackendConfig struct {
	Hostname       string
	Ingester       Ingester
	Collector      metrics.Collector // nil → NoopCollector
	MaxRecipients  int
	MaxMessageSize int64
	Logger         *slog.Logger // nil → slog.Default()
}

// NewBackend creates a new Backend with the given configuration.
func NewBackend(cfg BackendConfig) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return &Backend{
		hostname:       cfg.Hostname,
		ingester:       cfg.Ingester,
		collector:      collector,
		maxRecipients:  cfg.MaxRecipients,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger,
	}
}

// NewSession is called for each new connection.
// It implements the smtp.Backend interface.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.collector.ConnectionOpened()
	if _, ok := c.TLSConnectionState(); ok {
		b.collector.TLSConnectionEstablished()
	}

	peer := ""
	if conn := c.Conn(); conn != nil && conn.RemoteAddr() != nil {
		peer = conn.RemoteAddr().String()
	}

	return &Session{
		backend: b,
		peer:    peer,
		logger:  logging.WithConnection(b.logger, peer),
	}, nil
}
