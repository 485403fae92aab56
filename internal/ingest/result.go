package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/webhook"
)

// Delivered is one recipient whose record was written.
type Delivered struct {
	Recipient string
	Stored    *mailbox.Stored
}

// Result is the outcome of Handle.
type Result struct {
	// Status is the completion line, "250 OK" or "500 <reason>".
	Status string
	// Err is set when the envelope was rejected.
	Err error
	// IngestID correlates the log lines of this envelope.
	IngestID string
	// ID is the record id shared by every recipient.
	ID     string
	Stored []Delivered
	// Tasks holds one webhook task per stored recipient, finished unless
	// webhooks run asynchronously.
	Tasks []*webhook.Task
}

// OK reports whether the envelope was accepted.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Code returns the numeric SMTP reply code of Status.
func (r *Result) Code() int {
	code, _, _ := strings.Cut(r.Status, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return n
}

// Message returns Status without its reply code.
func (r *Result) Message() string {
	_, msg, _ := strings.Cut(r.Status, " ")
	return msg
}

// Wait blocks until every webhook task has finished or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	for _, t := range r.Tasks {
		if _, err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
