// Package webhook notifies HTTP endpoints about stored messages, either
// through a per-mailbox templated and signed configuration with retries or
// through a single global URL.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/metrics"
)

// SignatureHeader carries the payload HMAC when a secret is configured.
const SignatureHeader = "X-Webhook-Signature"

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 2.0
	defaultTimeout     = 30 * time.Second
)

// Outcome summarizes one notification.
type Outcome string

const (
	// OutcomeNone means neither a mailbox webhook nor a global URL applies.
	OutcomeNone Outcome = "none"
	// OutcomeDelivered means an endpoint answered 2xx.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeFailed means every attempt failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the mailbox webhook could not be used: no URL or
	// a template that does not render to JSON.
	OutcomeSkipped Outcome = "skipped"
)

// ConfigSource loads the webhook configuration of a mailbox. A nil config
// with a nil error means the mailbox has none.
type ConfigSource interface {
	WebhookConfig(address string) (*mailbox.WebhookConfig, error)
}

// Config holds configuration for creating a Dispatcher.
type Config struct {
	Configs   ConfigSource
	GlobalURL string
	// HTTPClient defaults to a client without its own timeout; Timeout
	// bounds each request.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Sleep waits between attempts. Defaults to a timer honoring ctx.
	Sleep     func(ctx context.Context, d time.Duration) error
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
}

// Dispatcher delivers webhook notifications.
type Dispatcher struct {
	configs   ConfigSource
	globalURL string
	client    *http.Client
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	collector metrics.Collector
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		configs:   cfg.Configs,
		globalURL: cfg.GlobalURL,
		client:    cfg.HTTPClient,
		timeout:   cfg.Timeout,
		sleep:     cfg.Sleep,
		collector: cfg.Collector,
		logger:    cfg.Logger,
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	if d.collector == nil {
		d.collector = &metrics.NoopCollector{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Dispatch runs Notify on its own goroutine and returns a handle to it.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient string, rec *mailbox.Record) *Task {
	t := newTask(recipient)
	go func() {
		t.finish(d.Notify(ctx, recipient, rec))
	}()
	return t
}

// Notify delivers the notification for one stored record. It never returns
// an error; every failure is logged and reflected in the Outcome.
func (d *Dispatcher) Notify(ctx context.Context, recipient string, rec *mailbox.Record) Outcome {
	logger := d.logger.With(slog.String("rcpt", recipient))

	var cfg *mailbox.WebhookConfig
	if d.configs != nil {
		var err error
		cfg, err = d.configs.WebhookConfig(recipient)
		if err != nil {
			logger.Error("cannot load webhook config", slog.String("error", err.Error()))
			cfg = nil
		}
	}

	switch {
	case cfg != nil && cfg.Enabled:
		return d.sendConfigured(ctx, logger, cfg, rec)
	case d.globalURL != "":
		return d.sendGlobal(ctx, logger, rec)
	default:
		return OutcomeNone
	}
}

func (d *Dispatcher) sendConfigured(ctx context.Context, logger *slog.Logger, cfg *mailbox.WebhookConfig, rec *mailbox.Record) Outcome {
	if cfg.WebhookURL == "" {
		logger.Error("webhook enabled without a url")
		d.collector.WebhookDelivered("configured", "skipped")
		return OutcomeSkipped
	}

	tmpl := cfg.PayloadTemplate
	if tmpl == "" {
		tmpl = "{}"
	}
	payload, rendered, err := Payload(tmpl, rec)
	if err != nil {
		logger.Error("invalid webhook payload",
			slog.String("error", err.Error()),
			slog.String("template", tmpl),
			slog.String("rendered", rendered))
		d.collector.WebhookDelivered("configured", "skipped")
		return OutcomeSkipped
	}

	maxAttempts, backoff := defaultMaxAttempts, defaultBackoff
	if rc := cfg.RetryConfig; rc != nil {
		if rc.MaxAttempts > 0 {
			maxAttempts = rc.MaxAttempts
		}
		if rc.BackoffMultiplier > 0 {
			backoff = rc.BackoffMultiplier
		}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if cfg.SecretKey != "" {
		header.Set(SignatureHeader, Sign(payload, cfg.SecretKey))
	}

	logger = logger.With(slog.String("url", cfg.WebhookURL))
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, err := d.post(ctx, cfg.WebhookURL, header, payload)
		d.collector.WebhookAttempt(statusClass(status, err))
		switch {
		case err != nil:
			logger.Error("webhook request failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
		case status >= 200 && status < 300:
			logger.Info("webhook delivered", slog.Int("attempt", attempt+1))
			d.collector.WebhookDelivered("configured", "success")
			return OutcomeDelivered
		default:
			logger.Warn("webhook rejected",
				slog.Int("attempt", attempt+1),
				slog.Int("status", status))
		}

		if attempt < maxAttempts-1 {
			wait := retryDelay(backoff, attempt)
			logger.Info("retrying webhook", slog.Duration("wait", wait))
			if err := d.sleep(ctx, wait); err != nil {
				logger.Error("webhook retry abandoned", slog.String("error", err.Error()))
				break
			}
		}
	}

	logger.Error("webhook failed", slog.Int("attempts", maxAttempts))
	d.collector.WebhookDelivered("configured", "failure")
	return OutcomeFailed
}

func (d *Dispatcher) sendGlobal(ctx context.Context, logger *slog.Logger, rec *mailbox.Record) Outcome {
	payload, err := marshal(rec)
	if err != nil {
		logger.Error("encoding global webhook payload", slog.String("error", err.Error()))
		d.collector.WebhookDelivered("global", "failure")
		return OutcomeFailed
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	status, err := d.post(ctx, d.globalURL, header, payload)
	d.collector.WebhookAttempt(statusClass(status, err))
	switch {
	case err != nil:
		logger.Error("global webhook request failed", slog.String("error", err.Error()))
	case status >= 200 && status < 300:
		logger.Info("global webhook delivered")
		d.collector.WebhookDelivered("global", "success")
		return OutcomeDelivered
	default:
		logger.Warn("global webhook rejected", slog.Int("status", status))
	}
	d.collector.WebhookDelivered("global", "failure")
	return OutcomeFailed
}

func (d *Dispatcher) post(ctx context.Context, url string, header http.Header, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck
	return resp.StatusCode, nil
}

func statusClass(status int, err error) string {
	if err != nil || status < 100 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// maxRetryDelay caps a single wait between attempts.
const maxRetryDelay = time.Hour

// retryDelay is backoff^attempt seconds, capped at maxRetryDelay.
func retryDelay(backoff float64, attempt int) time.Duration {
	secs := math.Pow(backoff, float64(attempt))
	if math.IsNaN(secs) || secs*float64(time.Second) >= float64(maxRetryDelay) {
		return maxRetryDelay
	}
	return time.Duration(secs * float64(time.Second))
}
