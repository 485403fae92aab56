package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/logging"
)

const shutdownTimeout = 30 * time.Second

type listenerEntry struct {
	server *gosmtp.Server
	mode   config.ListenerMode
	logger *slog.Logger
}

// Server runs one go-smtp server per configured listener, all sharing a Backend.
type Server struct {
	entries []listenerEntry
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// ServerConfig holds configuration for creating a multi-listener Server.
type ServerConfig struct {
	Backend        *Backend
	Listeners      []config.ListenerConfig
	Hostname       string
	TLSConfig      *tls.Config
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int
	MaxRecipients  int
	Logger         *slog.Logger
}

// NewServer configures a go-smtp server per listener. Plain smtp listeners
// advertise STARTTLS when TLSConfig is set; smtps listeners require it.
func NewServer(cfg ServerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		entries: make([]listenerEntry, 0, len(cfg.Listeners)),
		logger:  logger,
	}

	debug := logger.Enabled(context.Background(), slog.LevelDebug)

	for _, listener := range cfg.Listeners {
		switch listener.Mode {
		case config.ModeSmtp:
		case config.ModeSmtps:
			if cfg.TLSConfig == nil {
				return nil, fmt.Errorf("listener %s: smtps requires a TLS certificate", listener.Address)
			}
		default:
			return nil, fmt.Errorf("listener %s: unsupported mode %q", listener.Address, listener.Mode)
		}

		lnLogger := logging.WithListener(logger, listener.Address, string(listener.Mode))

		s := gosmtp.NewServer(cfg.Backend)
		s.Addr = listener.Address
		s.Domain = cfg.Hostname
		s.ReadTimeout = cfg.ReadTimeout
		s.WriteTimeout = cfg.WriteTimeout
		s.MaxMessageBytes = int64(cfg.MaxMessageSize)
		s.MaxRecipients = cfg.MaxRecipients
		s.EnableSMTPUTF8 = true
		s.TLSConfig = cfg.TLSConfig
		s.ErrorLog = slog.NewLogLogger(lnLogger.Handler(), slog.LevelError)
		if debug {
			s.Debug = logging.NewTransactionWriter(io.Discard, lnLogger, "smtp")
		}

		srv.entries = append(srv.entries, listenerEntry{server: s, mode: listener.Mode, logger: lnLogger})
	}

	return srv, nil
}

// bind opens every listener before any is served, so a busy port fails
// the whole server instead of leaving it half up.
func (s *Server) bind() ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(s.entries))
	for _, entry := range s.entries {
		ln, err := net.Listen("tcp", entry.server.Addr)
		if err != nil {
			for _, open := range listeners {
				_ = open.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", entry.server.Addr, err)
		}
		if entry.mode == config.ModeSmtps {
			ln = tls.NewListener(ln, entry.server.TLSConfig)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// Run serves all listeners until ctx is canceled or one of them fails, then
// shuts every server down. It returns the first listener error, or ctx.Err().
func (s *Server) Run(ctx context.Context) error {
	listeners, err := s.bind()
	if err != nil {
		return err
	}

	errChan := make(chan error, len(s.entries))
	for i, entry := range s.entries {
		s.wg.Add(1)
		go func(entry listenerEntry, ln net.Listener) {
			defer s.wg.Done()
			entry.logger.Info("accepting connections")
			if err := entry.server.Serve(ln); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				errChan <- fmt.Errorf("server %s: %w", entry.server.Addr, err)
			}
		}(entry, listeners[i])
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errChan:
		s.logger.Error("listener failed", slog.String("error", runErr.Error()))
	}

	s.logger.Info("shutting down listeners")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, entry := range s.entries {
		if err := entry.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			entry.logger.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}
	// Serve may not have registered its listener yet.
	for _, ln := range listeners {
		_ = ln.Close()
	}

	s.wg.Wait()
	close(errChan)
	for err := range errChan {
		s.logger.Error("listener error", slog.String("error", err.Error()))
	}

	s.logger.Info("all listeners stopped")
	return runErr
}
