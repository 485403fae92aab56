// Package notify publishes a "message stored" event on Redis pub/sub for
// every record written to a mailbox, so that live clients can refresh.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/metrics"
)

// Event is the JSON document published per stored record.
type Event struct {
	Email       string   `json:"email"`
	ID          string   `json:"id"`
	From        string   `json:"from"`
	Subject     string   `json:"subject"`
	Attachments []string `json:"attachments"`
}

// Config holds configuration for creating a Publisher.
type Config struct {
	Client        redis.UniversalClient
	ChannelPrefix string
	Collector     metrics.Collector // nil → NoopCollector
	Logger        *slog.Logger      // nil → slog.Default()
}

// Publisher sends events to one channel per mailbox.
type Publisher struct {
	client    redis.UniversalClient
	prefix    string
	collector metrics.Collector
	logger    *slog.Logger
}

// NewClient opens a Redis client for cfg. The connection is established lazily.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Client == nil {
		return nil, errors.New("notify: redis client is required")
	}
	p := &Publisher{
		client:    cfg.Client,
		prefix:    cfg.ChannelPrefix,
		collector: cfg.Collector,
		logger:    cfg.Logger,
	}
	if p.collector == nil {
		p.collector = &metrics.NoopCollector{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Channel returns the pub/sub channel of a mailbox.
func Channel(prefix, recipient string) string {
	if prefix == "" {
		return recipient
	}
	return prefix + ":" + recipient
}

// Name identifies the publisher in logs.
func (p *Publisher) Name() string {
	return "redis"
}

// MessageStored publishes the event for one stored record.
func (p *Publisher) MessageStored(ctx context.Context, recipient string, stored *mailbox.Stored) error {
	ev := Event{
		Email:       recipient,
		ID:          stored.ID,
		From:        stored.Record.Parsed.From,
		Subject:     stored.Record.Parsed.Subject,
		Attachments: stored.Record.Parsed.Attachments,
	}
	if ev.Attachments == nil {
		ev.Attachments = []string{}
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.collector.EventPublished("failure")
		return fmt.Errorf("encoding event: %w", err)
	}

	channel := Channel(p.prefix, recipient)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		p.collector.EventPublished("failure")
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	p.collector.EventPublished("success")
	p.logger.Debug("event published",
		slog.String("channel", channel),
		slog.Int64("receivers", receivers))
	return nil
}
