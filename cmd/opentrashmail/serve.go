package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abyssox/opentrashmail/internal/api"
	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/logging"
	"github.com/abyssox/opentrashmail/internal/metrics"
	"github.com/abyssox/opentrashmail/internal/smtp"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP listeners and the HTTP API",
		Args:  cobra.NoArgs,
	}
	flags := config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFlags(flags)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, logging.NewLogger(cfg.LogLevel))
	}
	return cmd
}

// runServe blocks until ctx is cancelled or a listener fails.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tlsConfig, err := loadTLS(cfg.TLS)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	})
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer shutdown(logger, "metrics", metricsServer.Shutdown)

	stack, err := smtp.NewStack(smtp.StackConfig{
		Config:    cfg,
		TLSConfig: tlsConfig,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating stack: %w", err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("error closing stack", "error", err)
		}
	}()

	if cfg.API.Enabled {
		allowed, err := cfg.API.AllowedPrefixes()
		if err != nil {
			return err
		}
		apiServer, err := api.New(api.Config{
			Address:         cfg.API.Address,
			Store:           stack.Store,
			ShowAccountList: cfg.API.ShowAccountList,
			AdminPassword:   cfg.API.AdminPassword,
			AllowedIPs:      allowed,
			Password:        cfg.API.Password,
			BaseURL:         cfg.BaseURL,
			Domains:         cfg.Domains.AcceptPatterns(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Error("api server error", "error", err)
				cancel()
			}
		}()
		defer shutdown(logger, "api", apiServer.Shutdown)
	}

	logger.Info("starting opentrashmail",
		"version", version,
		"hostname", cfg.Hostname,
		"listeners", len(cfg.Listeners),
		"data_dir", cfg.Mailbox.DataDir)

	if err := stack.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// loadTLS returns nil when no certificate is configured.
func loadTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.MinTLSVersion(),
	}, nil
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("shutdown failed", "component", name, "error", err)
	}
}
