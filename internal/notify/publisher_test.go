package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/metrics"
)

type countingCollector struct {
	metrics.NoopCollector
	results []string
}

func (c *countingCollector) EventPublished(result string) {
	c.results = append(c.results, result)
}

func testStored() *mailbox.Stored {
	return &mailbox.Stored{
		ID: "1700000000000",
		Record: &mailbox.Record{
			Parsed: mailbox.Parsed{
				Subject:     "hi",
				From:        "alice@example.org",
				Attachments: []string{"abc_file"},
			},
		},
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("opentrashmail", "bob@example.com"); got != "opentrashmail:bob@example.com" {
		t.Errorf("Channel() = %q", got)
	}
	if got := Channel("", "bob@example.com"); got != "bob@example.com" {
		t.Errorf("Channel() without prefix = %q", got)
	}
}

func TestNewPublisherRequiresClient(t *testing.T) {
	if _, err := NewPublisher(Config{}); err == nil {
		t.Error("expected error without client")
	}
}

func TestMessageStoredPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "otm:bob@example.com")
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	collector := &countingCollector{}
	p, err := NewPublisher(Config{Client: client, ChannelPrefix: "otm", Collector: collector})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if p.Name() != "redis" {
		t.Errorf("Name() = %q", p.Name())
	}

	if err := p.MessageStored(ctx, "bob@example.com", testStored()); err != nil {
		t.Fatalf("MessageStored() error = %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Email != "bob@example.com" || ev.ID != "1700000000000" || ev.Subject != "hi" || ev.From != "alice@example.org" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0] != "abc_file" {
		t.Errorf("attachments = %v", ev.Attachments)
	}
	if len(collector.results) != 1 || collector.results[0] != "success" {
		t.Errorf("metrics = %v", collector.results)
	}
}

func TestMessageStoredEmptyAttachments(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "bob@example.com")
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p, _ := NewPublisher(Config{Client: client})
	stored := testStored()
	stored.Record.Parsed.Attachments = nil
	if err := p.MessageStored(ctx, "bob@example.com", stored); err != nil {
		t.Fatalf("MessageStored() error = %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["attachments"]) != "[]" {
		t.Errorf("attachments = %s, want []", raw["attachments"])
	}
}

func TestMessageStoredRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	collector := &countingCollector{}
	p, _ := NewPublisher(Config{Client: client, Collector: collector})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.MessageStored(ctx, "bob@example.com", testStored()); err == nil {
		t.Error("expected error with redis down")
	}
	if len(collector.results) != 1 || collector.results[0] != "failure" {
		t.Errorf("metrics = %v", collector.results)
	}
}
