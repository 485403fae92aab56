package testutil

import (
	"bytes"
	"testing"
	"time"

	gomessage "github.com/emersion/go-message"
)

// TestAttachment is one attachment part of a TestMessage.
type TestAttachment struct {
	Filename    string
	ContentType string // defaults to application/octet-stream
	ContentID   string // written as <ContentID> when set
	Data        []byte
}

// TestMessage describes a message to render as RFC 5322 bytes.
type TestMessage struct {
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []TestAttachment
}

// Build renders the message. A message with only Text is a single
// text/plain entity; anything else is multipart/mixed with the bodies in a
// multipart/alternative part followed by the attachments.
func (m TestMessage) Build(t *testing.T) []byte {
	t.Helper()

	var h gomessage.Header
	h.Set("From", m.From)
	h.Set("To", m.To)
	if m.Subject != "" {
		h.Set("Subject", m.Subject)
	}
	h.Set("Date", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC1123Z))
	h.Set("Mime-Version", "1.0")

	var buf bytes.Buffer
	if m.HTML == "" && len(m.Attachments) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := gomessage.CreateWriter(&buf, h)
		if err != nil {
			t.Fatalf("creating message writer: %v", err)
		}
		writeAndClose(t, w, []byte(m.Text))
		return buf.Bytes()
	}

	h.SetContentType("multipart/mixed", nil)
	w, err := gomessage.CreateWriter(&buf, h)
	if err != nil {
		t.Fatalf("creating message writer: %v", err)
	}

	var altHeader gomessage.Header
	altHeader.SetContentType("multipart/alternative", nil)
	alt, err := w.CreatePart(altHeader)
	if err != nil {
		t.Fatalf("creating alternative part: %v", err)
	}
	if m.Text != "" {
		writePart(t, alt, textHeader("text/plain"), []byte(m.Text))
	}
	if m.HTML != "" {
		writePart(t, alt, textHeader("text/html"), []byte(m.HTML))
	}
	if err := alt.Close(); err != nil {
		t.Fatalf("closing alternative part: %v", err)
	}

	for _, a := range m.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		var ah gomessage.Header
		ah.SetContentType(ct, nil)
		disposition := "attachment"
		if a.ContentID != "" {
			disposition = "inline"
			ah.Set("Content-Id", "<"+a.ContentID+">")
		}
		ah.SetContentDisposition(disposition, map[string]string{"filename": a.Filename})
		ah.Set("Content-Transfer-Encoding", "base64")
		writePart(t, w, ah, a.Data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("closing message: %v", err)
	}
	return buf.Bytes()
}

func textHeader(mediaType string) gomessage.Header {
	var h gomessage.Header
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return h
}

func writePart(t *testing.T, w *gomessage.Writer, h gomessage.Header, body []byte) {
	t.Helper()
	pw, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	writeAndClose(t, pw, body)
}

func writeAndClose(t *testing.T, w *gomessage.Writer, body []byte) {
	t.Helper()
	if _, err := w.Write(body); err != nil {
		t.Fatalf("writing body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing part: %v", err)
	}
}
