// Package logging builds the slog loggers shared by the listeners, the
// ingestion pipeline and the HTTP API.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var connectionCounter atomic.Uint64

// ParseLevel maps a configured level name to a slog.Level.
// Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on stderr at the given level.
func NewLogger(level string) *slog.Logger {
	return New(os.Stderr, level)
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// WithConnection tags logger with a process-unique conn_id and the peer address.
func WithConnection(logger *slog.Logger, remoteAddr string) *slog.Logger {
	return logger.With(
		slog.Uint64("conn_id", connectionCounter.Add(1)),
		slog.String("remote_addr", remoteAddr),
	)
}

// WithListener tags logger with a listener address and mode.
func WithListener(logger *slog.Logger, address string, mode string) *slog.Logger {
	return logger.With(
		slog.String("listener", address),
		slog.String("mode", mode),
	)
}

// WithIngest tags logger with the id of one envelope.
func WithIngest(logger *slog.Logger, ingestID string) *slog.Logger {
	return logger.With(slog.String("ingest_id", ingestID))
}

// WithRecipient tags logger with a mailbox address.
func WithRecipient(logger *slog.Logger, recipient string) *slog.Logger {
	return logger.With(slog.String("rcpt", recipient))
}

// TransactionWriter is the go-smtp debug sink. Every chunk the protocol
// layer writes is forwarded to w and logged at debug level.
type TransactionWriter struct {
	w      io.Writer
	logger *slog.Logger
	prefix string
}

// NewTransactionWriter returns a TransactionWriter tagging lines with prefix.
func NewTransactionWriter(w io.Writer, logger *slog.Logger, prefix string) *TransactionWriter {
	return &TransactionWriter{w: w, logger: logger, prefix: prefix}
}

func (tw *TransactionWriter) Write(p []byte) (int, error) {
	n, err := tw.w.Write(p)
	if n > 0 {
		tw.logger.Debug("transaction",
			slog.String("direction", tw.prefix),
			slog.String("data", strings.TrimRight(string(p[:n]), "\r\n")),
		)
	}
	return n, err
}
