// Package ingest turns one SMTP envelope into mailbox records: it parses
// and normalizes the message once, then stores it for every accepted
// recipient in envelope order and notifies that recipient's webhook.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abyssox/opentrashmail/internal/logging"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/message"
	"github.com/abyssox/opentrashmail/internal/metrics"
	"github.com/abyssox/opentrashmail/internal/mimeparse"
	"github.com/abyssox/opentrashmail/internal/pathsafe"
	"github.com/abyssox/opentrashmail/internal/recipient"
	"github.com/abyssox/opentrashmail/internal/webhook"
)

// StatusOK is returned for every envelope that was not rejected as a whole.
const StatusOK = "250 OK"

// Envelope is one SMTP transaction.
type Envelope struct {
	// PeerAddr is the client address, host:port or a bare host.
	PeerAddr   string
	Sender     string
	Recipients []string
	Data       []byte
	// ReceivedAt defaults to the handler clock.
	ReceivedAt time.Time
}

// Persister stores one message for one recipient.
type Persister interface {
	Persist(recipient string, d mailbox.Delivery) (*mailbox.Stored, error)
}

// Notifier starts webhook delivery for a stored record.
type Notifier interface {
	Dispatch(ctx context.Context, recipient string, rec *mailbox.Record) *webhook.Task
}

// Hook observes every stored record. Errors are logged and never affect
// the envelope.
type Hook interface {
	Name() string
	MessageStored(ctx context.Context, recipient string, stored *mailbox.Stored) error
}

// Config holds configuration for creating a Handler.
type Config struct {
	// MaxAttachmentSize rejects the envelope when any attachment is larger.
	// 0 disables the check.
	MaxAttachmentSize int64
	// AsyncWebhooks detaches webhook tasks instead of awaiting each one
	// before the next recipient is processed.
	AsyncWebhooks bool

	Router    *recipient.Router
	Store     Persister
	Webhooks  Notifier // nil disables notifications
	Hooks     []Hook
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
	Now       func() time.Time  // nil → time.Now
}

// Handler processes envelopes. It is safe for concurrent use.
type Handler struct {
	maxAttachmentSize int64
	async             bool
	router            *recipient.Router
	store             Persister
	webhooks          Notifier
	hooks             []Hook
	collector         metrics.Collector
	logger            *slog.Logger
	now               func() time.Time
}

// NewHandler creates a Handler. Router and Store are required.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Router == nil {
		return nil, errors.New("ingest: router is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	h := &Handler{
		maxAttachmentSize: cfg.MaxAttachmentSize,
		async:             cfg.AsyncWebhooks,
		router:            cfg.Router,
		store:             cfg.Store,
		webhooks:          cfg.Webhooks,
		hooks:             cfg.Hooks,
		collector:         cfg.Collector,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
	if h.collector == nil {
		h.collector = &metrics.NoopCollector{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

// Handle ingests one envelope. Only an oversized attachment rejects the
// envelope; per-recipient problems are logged and skipped.
func (h *Handler) Handle(ctx context.Context, env Envelope) *Result {
	ingestID := uuid.NewString()
	logger := logging.WithIngest(h.logger, ingestID)

	receivedAt := env.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = h.now()
	}
	res := &Result{
		IngestID: ingestID,
		ID:       strconv.FormatInt(receivedAt.UnixMilli(), 10),
	}

	logger.Debug("receiving message",
		slog.String("peer", env.PeerAddr),
		slog.String("mail_from", env.Sender),
		slog.Any("rcpts", env.Recipients),
		slog.Int("size", len(env.Data)))

	primaryDomain := ""
	if len(env.Recipients) > 0 {
		primaryDomain = domainOf(env.Recipients[0])
	}
	h.collector.MessageReceived(primaryDomain, int64(len(env.Data)))

	parsed, err := mimeparse.Parse(env.Data)
	if err != nil {
		logger.Warn("message partially parsed", slog.String("error", err.Error()))
	}
	norm, err := message.Normalize(parsed, h.maxAttachmentSize)
	if err != nil {
		var sizeErr *message.SizeLimitError
		if errors.As(err, &sizeErr) {
			logger.Warn("attachment too large",
				slog.String("filename", sizeErr.Filename),
				slog.Int64("size", sizeErr.Size),
				slog.Int64("limit", sizeErr.Limit))
			h.collector.MessageRejected(primaryDomain, "attachment_too_large")
			res.Status = "500 " + sizeErr.Reply()
			res.Err = sizeErr
			return res
		}
		// Normalize fails only on size; anything else rejects the same way.
		logger.Error("normalizing message", slog.String("error", err.Error()))
		res.Status = "500 " + err.Error()
		res.Err = err
		return res
	}

	from := norm.From
	if from == "" {
		from = env.Sender
	}
	rcpts := env.Recipients
	if rcpts == nil {
		rcpts = []string{}
	}
	delivery := mailbox.Delivery{
		ID:       res.ID,
		SenderIP: peerHost(env.PeerAddr),
		From:     from,
		Rcpts:    rcpts,
		Raw:      strings.ToValidUTF8(string(env.Data), "�"),
		Message:  norm,
	}

	for _, rcpt := range env.Recipients {
		h.deliver(ctx, logger, rcpt, delivery, res)
	}

	res.Status = StatusOK
	return res
}

func (h *Handler) deliver(ctx context.Context, logger *slog.Logger, rcpt string, d mailbox.Delivery, res *Result) {
	dec := h.router.Route(rcpt)
	logger = logging.WithRecipient(logger, dec.Address)

	switch dec.Verdict {
	case recipient.Reject:
		logger.Warn("invalid recipient", slog.String("reason", dec.Reason))
		h.collector.MessageRejected(domainOf(dec.Address), "invalid_recipient")
		return
	case recipient.Discard:
		logger.Info("discarding mail for unknown domain", slog.String("domain", dec.Domain))
		h.collector.RecipientDiscarded(dec.Domain)
		return
	}

	stored, err := h.store.Persist(dec.Address, d)
	if err != nil {
		if errors.Is(err, pathsafe.ErrUnsafePath) {
			logger.Error("skipping recipient with unsafe mailbox path", slog.String("error", err.Error()))
		} else {
			logger.Error("storing message", slog.String("error", err.Error()))
		}
		h.collector.MessageRejected(dec.Domain, "store_failed")
		return
	}
	h.collector.MessageStored(dec.Domain)
	logger.Info("message stored",
		slog.String("id", stored.ID),
		slog.Int("attachments", len(stored.AttachmentPaths)))
	res.Stored = append(res.Stored, Delivered{Recipient: dec.Address, Stored: stored})

	for _, hook := range h.hooks {
		if err := hook.MessageStored(ctx, dec.Address, stored); err != nil {
			logger.Error("post-store hook failed",
				slog.String("hook", hook.Name()),
				slog.String("error", err.Error()))
		}
	}

	if h.webhooks == nil {
		return
	}
	if h.async {
		res.Tasks = append(res.Tasks, h.webhooks.Dispatch(context.WithoutCancel(ctx), dec.Address, stored.Record))
		return
	}
	task := h.webhooks.Dispatch(ctx, dec.Address, stored.Record)
	res.Tasks = append(res.Tasks, task)
	if _, err := task.Wait(ctx); err != nil {
		logger.Warn("stopped waiting for webhook", slog.String("error", err.Error()))
	}
}

func domainOf(addr string) string {
	_, domain, _ := strings.Cut(strings.ToLower(addr), "@")
	return domain
}

func peerHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
