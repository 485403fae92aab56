package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"

	"github.com/abyssox/opentrashmail/internal/archive"
	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/ingest"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/metrics"
	"github.com/abyssox/opentrashmail/internal/notify"
	"github.com/abyssox/opentrashmail/internal/recipient"
	"github.com/abyssox/opentrashmail/internal/webhook"
)

// Stack owns all components of a running instance and manages their lifecycle.
type Stack struct {
	Server  *Server
	Store   *mailbox.Store
	Handler *ingest.Handler
	closers []io.Closer
	logger  *slog.Logger
}

// StackConfig groups config needed to build a Stack.
// TLSConfig is caller-supplied (the serve command loads it; tests omit it).
type StackConfig struct {
	Config    config.Config
	TLSConfig *tls.Config
	// ObjectStore overrides the S3 client built from Config.Archive.
	ObjectStore archive.ObjectStore
	Collector   metrics.Collector // nil → NoopCollector
	Logger      *slog.Logger      // nil → slog.Default()
}

// NewStack creates a Stack from the given configuration, wiring up all components.
func NewStack(cfg StackConfig) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	s := &Stack{logger: logger}

	store, err := mailbox.NewStore(mailbox.StoreConfig{
		Root:      cfg.Config.Mailbox.DataDir,
		BaseURL:   cfg.Config.BaseURL,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	s.Store = store
	logger.Info("mailbox store ready", "path", store.Root())

	patterns := cfg.Config.Domains.AcceptPatterns()
	router := recipient.NewRouter(patterns, cfg.Config.Domains.DiscardUnknown)
	if cfg.Config.Domains.DiscardUnknown {
		logger.Info("discarding mail for unknown domains", "accept", patterns)
	}

	dispatcher := webhook.NewDispatcher(webhook.Config{
		Configs:   store,
		GlobalURL: cfg.Config.Webhook.GlobalURL,
		Timeout:   cfg.Config.Webhook.RequestTimeout(),
		Collector: collector,
		Logger:    logger,
	})

	var hooks []ingest.Hook

	if cfg.Config.Redis.Address != "" {
		client := notify.NewClient(cfg.Config.Redis)
		s.closers = append(s.closers, client)
		pub, err := notify.NewPublisher(notify.Config{
			Client:        client,
			ChannelPrefix: cfg.Config.Redis.ChannelPrefix,
			Collector:     collector,
			Logger:        logger,
		})
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		hooks = append(hooks, pub)
		logger.Info("event publishing enabled", "address", cfg.Config.Redis.Address)
	}

	if cfg.Config.Archive.Enabled {
		objects := cfg.ObjectStore
		if objects == nil {
			client, err := archive.NewS3Client(cfg.Config.Archive)
			if err != nil {
				s.Close() //nolint:errcheck
				return nil, err
			}
			objects = client
		}
		arch, err := archive.New(archive.Config{
			Client:    objects,
			Bucket:    cfg.Config.Archive.Bucket,
			Compress:  cfg.Config.Archive.Compress,
			Collector: collector,
			Logger:    logger,
		})
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		hooks = append(hooks, arch)
		logger.Info("archiving enabled", "bucket", cfg.Config.Archive.Bucket, "compress", cfg.Config.Archive.Compress)
	}

	handler, err := ingest.NewHandler(ingest.Config{
		MaxAttachmentSize: cfg.Config.Limits.MaxAttachmentSize,
		AsyncWebhooks:     cfg.Config.Webhook.Async,
		Router:            router,
		Store:             store,
		Webhooks:          dispatcher,
		Hooks:             hooks,
		Collector:         collector,
		Logger:            logger,
	})
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	s.Handler = handler

	backend := NewBackend(BackendConfig{
		Hostname:       cfg.Config.Hostname,
		Ingester:       handler,
		Collector:      collector,
		MaxRecipients:  cfg.Config.Limits.MaxRecipients,
		MaxMessageSize: int64(cfg.Config.Limits.MaxMessageSize),
		Logger:         logger,
	})

	srv, err := NewServer(ServerConfig{
		Backend:        backend,
		Listeners:      cfg.Config.Listeners,
		Hostname:       cfg.Config.Hostname,
		TLSConfig:      cfg.TLSConfig,
		ReadTimeout:    cfg.Config.Timeouts.ConnectionTimeout(),
		WriteTimeout:   cfg.Config.Timeouts.ConnectionTimeout(),
		MaxMessageSize: cfg.Config.Limits.MaxMessageSize,
		MaxRecipients:  cfg.Config.Limits.MaxRecipients,
		Logger:         logger,
	})
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}

	s.Server = srv
	return s, nil
}

// Run starts the server and blocks until the context is cancelled.
func (s *Stack) Run(ctx context.Context) error {
	return s.Server.Run(ctx)
}

// Close shuts down all closeable components in reverse registration order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
