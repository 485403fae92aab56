package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-smtp"

	"github.com/abyssox/opentrashmail/internal/ingest"
)

// Session implements the go-smtp Session interface.
type Session struct {
	backend    *Backend
	peer       string
	from       string
	recipients []string
	logger     *slog.Logger
}

// Mail handles the MAIL FROM command.
// Implements smtp.Session interface.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	s.backend.collector.CommandProcessed("MAIL")
	s.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command. Every syntactically accepted recipient
// is taken; routing happens after DATA.
// Implements smtp.Session interface.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.backend.maxRecipients > 0 && len(s.recipients) >= s.backend.maxRecipients {
		return &smtp.SMTPError{
			Code:         452,
			EnhancedCode: smtp.EnhancedCode{4, 5, 3},
			Message:      "Too many recipients",
		}
	}

	s.recipients = append(s.recipients, to)
	s.backend.collector.CommandProcessed("RCPT")
	s.logger.Debug("RCPT TO", slog.String("to", to))
	return nil
}

// Data reads the message and runs ingestion.
// Implements smtp.Session interface.
func (s *Session) Data(r io.Reader) error {
	ctx := context.Background()

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Debug("failed to read message data", slog.String("error", err.Error()))
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			s.backend.collector.MessageRejected(sessionExtractRecipientDomain(s.recipients), "too_large")
			return smtpErr
		}
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	s.backend.collector.CommandProcessed("DATA")

	if s.backend.ingester == nil {
		s.backend.collector.MessageRejected(sessionExtractRecipientDomain(s.recipients), "no_ingester")
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Mail storage not configured",
		}
	}

	res := s.backend.ingester.Handle(ctx, ingest.Envelope{
		PeerAddr:   s.peer,
		Sender:     s.from,
		Recipients: append([]string(nil), s.recipients...),
		Data:       data,
	})
	if !res.OK() {
		s.logger.Info("message rejected",
			slog.String("ingest_id", res.IngestID),
			slog.String("status", res.Status))
		return &smtp.SMTPError{
			Code:         res.Code(),
			EnhancedCode: smtp.EnhancedCode{5, 3, 4},
			Message:      res.Message(),
		}
	}

	s.logger.Debug("message accepted",
		slog.String("ingest_id", res.IngestID),
		slog.Int("size", len(data)),
		slog.Int("stored", len(res.Stored)))
	return nil
}

// Reset is called when the client sends RSET.
// Implements smtp.Session interface.
func (s *Session) Reset() {
	s.from = ""
	s.recipients = nil
	s.logger.Debug("session reset")
}

// Logout is called when the client quits or the connection closes.
// Implements smtp.Session interface.
func (s *Session) Logout() error {
	s.backend.collector.ConnectionClosed()
	s.logger.Debug("session logout")
	return nil
}

// sessionExtractRecipientDomain extracts the domain from the first recipient's email address.
func sessionExtractRecipientDomain(recipients []string) string {
	if len(recipients) == 0 {
		return "unknown"
	}

	email := recipients[0]
	if idx := strings.LastIndex(email, "@"); idx >= 0 {
		return email[idx+1:]
	}
	return "unknown"
}
