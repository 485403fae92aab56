package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abyssox/opentrashmail/internal/mailbox"
)

// DefaultTemplate is offered to mailboxes that configure a webhook without
// a template of their own.
const DefaultTemplate = `{"email":"{{to}}","from":"{{from}}","subject":"{{subject}}","body":"{{body}}"}`

var jsonStringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeString escapes s for embedding inside a JSON string literal.
func EscapeString(s string) string {
	return jsonStringEscaper.Replace(s)
}

// Render substitutes the record placeholders in tmpl. Every placeholder
// except {{attachments}} is string-escaped; {{attachments}} becomes a JSON
// array of attachment details. {{to}} is the first envelope recipient.
func Render(tmpl string, rec *mailbox.Record) string {
	to := ""
	if len(rec.Rcpts) > 0 {
		to = rec.Rcpts[0]
	}
	return strings.NewReplacer(
		"{{to}}", EscapeString(to),
		"{{from}}", EscapeString(rec.Parsed.From),
		"{{subject}}", EscapeString(rec.Parsed.Subject),
		"{{body}}", EscapeString(rec.Parsed.Body),
		"{{htmlbody}}", EscapeString(rec.Parsed.HTMLBody),
		"{{sender_ip}}", EscapeString(rec.SenderIP),
		"{{attachments}}", attachmentsJSON(rec.Parsed.AttachmentsDetails),
	).Replace(tmpl)
}

func attachmentsJSON(details []mailbox.AttachmentDetail) string {
	if details == nil {
		details = []mailbox.AttachmentDetail{}
	}
	b, err := marshal(details)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Payload renders tmpl and returns the compacted JSON document. The same
// bytes are signed and sent.
func Payload(tmpl string, rec *mailbox.Record) ([]byte, string, error) {
	rendered := Render(tmpl, rec)
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(rendered)); err != nil {
		return nil, rendered, fmt.Errorf("rendered payload is not valid JSON: %w", err)
	}
	return buf.Bytes(), rendered, nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed with secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// marshal encodes v without HTML escaping and without a trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var sampleRecord = &mailbox.Record{
	SenderIP: "test",
	Rcpts:    []string{"test"},
	Parsed: mailbox.Parsed{
		From:     "test",
		Subject:  "test",
		Body:     "test",
		HTMLBody: "test",
	},
}

// CheckTemplate reports whether tmpl renders to valid JSON when every
// placeholder is filled with a sample value.
func CheckTemplate(tmpl string) error {
	_, _, err := Payload(tmpl, sampleRecord)
	return err
}
