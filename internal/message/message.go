// Package message turns parsed MIME parts into the normalized form stored
// in a mailbox: aggregated text and HTML bodies plus an ordered list of
// attachments.
package message

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/abyssox/opentrashmail/internal/pathsafe"
)

// DefaultSubject is used when a message carries no Subject header.
const DefaultSubject = "(No Subject)"

// ErrSizeLimitExceeded is matched by every SizeLimitError.
var ErrSizeLimitExceeded = errors.New("attachment size limit exceeded")

// SizeLimitError reports an attachment larger than the configured ceiling.
type SizeLimitError struct {
	Filename string
	Size     int64
	Limit    int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("attachment %q is %d bytes, limit is %d", e.Filename, e.Size, e.Limit)
}

// Is makes errors.Is(err, ErrSizeLimitExceeded) succeed.
func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// Reply is the text of the SMTP rejection, without the status code.
func (e *SizeLimitError) Reply() string {
	return fmt.Sprintf("Attachment too large. Max size: %.2fMB", float64(e.Limit)/1000000)
}

// Part is one leaf of a parsed message.
type Part struct {
	// ContentType is the lower-cased media type, e.g. "text/plain".
	ContentType string
	Charset     string
	Filename    string
	// ContentID is the raw Content-ID header value, angle brackets included.
	ContentID string
	// AttachmentID is the X-Attachment-Id header some clients add.
	AttachmentID string
	// Body is the transfer-decoded payload.
	Body []byte
}

// MajorType returns the part of ContentType before the slash.
func (p Part) MajorType() string {
	major, _, _ := strings.Cut(p.ContentType, "/")
	return major
}

// Parsed is the output of the MIME parser.
type Parsed struct {
	Subject string
	From    string
	Parts   []Part
}

// Attachment is a non-body part kept as a file.
type Attachment struct {
	Filename string
	CID      string
	FileID   string
	Data     []byte
}

// Size returns the payload length in bytes.
func (a Attachment) Size() int64 {
	return int64(len(a.Data))
}

// Normalized is a message reduced to what a mailbox record stores. It is
// recipient independent; use RewriteHTML for the per-recipient HTML body.
type Normalized struct {
	Subject     string
	From        string
	Body        string
	HTMLBody    string
	Attachments []Attachment
}

// Normalize aggregates text bodies and collects attachments in document
// order. A nonzero maxAttachmentSize aborts on the first larger attachment
// with a *SizeLimitError.
func Normalize(p Parsed, maxAttachmentSize int64) (*Normalized, error) {
	n := &Normalized{
		Subject:     p.Subject,
		From:        p.From,
		Attachments: []Attachment{},
	}
	if n.Subject == "" {
		n.Subject = DefaultSubject
	}

	var text, html strings.Builder
	for _, part := range p.Parts {
		if part.MajorType() == "multipart" {
			continue
		}
		switch {
		case part.ContentType == "text/plain" && part.Filename == "":
			text.WriteString(DecodeText(part.Body, part.Charset))
		case part.ContentType == "text/html" && part.Filename == "":
			html.WriteString(DecodeText(part.Body, part.Charset))
		default:
			att := newAttachment(part)
			if maxAttachmentSize > 0 && att.Size() > maxAttachmentSize {
				return nil, &SizeLimitError{Filename: att.Filename, Size: att.Size(), Limit: maxAttachmentSize}
			}
			n.Attachments = append(n.Attachments, att)
		}
	}
	n.Body = text.String()
	n.HTMLBody = html.String()
	return n, nil
}

func newAttachment(p Part) Attachment {
	filename := p.Filename
	if filename == "" {
		filename = "untitled"
	}
	return Attachment{
		Filename: filename,
		CID:      contentID(p),
		FileID:   pathsafe.AttachmentID(filename),
		Data:     p.Body,
	}
}

// contentID prefers the Content-ID header, then X-Attachment-Id, then a
// digest of the payload.
func contentID(p Part) string {
	if cid := strings.TrimSpace(p.ContentID); cid != "" {
		return strings.Trim(cid, "<>")
	}
	if id := strings.TrimSpace(p.AttachmentID); id != "" {
		return id
	}
	sum := md5.Sum(p.Body)
	return hex.EncodeToString(sum[:])
}

// RewriteHTML returns the HTML body with every "cid:<content-id>" reference
// replaced by urlFor(fileID) of the matching attachment.
func (n *Normalized) RewriteHTML(urlFor func(fileID string) string) string {
	html := n.HTMLBody
	if html == "" {
		return html
	}
	for _, a := range n.Attachments {
		if a.CID == "" {
			continue
		}
		html = strings.ReplaceAll(html, "cid:"+a.CID, urlFor(a.FileID))
	}
	return html
}

// DownloadURL is the address at which the API serves a stored attachment.
func DownloadURL(baseURL, recipient, fileID string) string {
	return strings.TrimRight(baseURL, "/") + "/api/attachment/" + recipient + "/" + fileID
}

// DecodeText converts a text body to UTF-8. Valid UTF-8 is kept as is,
// whatever the declared charset. Otherwise a known declared charset is
// honoured, and anything else is read as Latin-1.
func DecodeText(b []byte, charset string) string {
	if utf8.Valid(b) {
		return string(b)
	}
	switch cs := strings.ToLower(strings.TrimSpace(charset)); cs {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
	default:
		if enc, err := ianaindex.MIME.Encoding(cs); err == nil && enc != nil {
			if out, err := enc.NewDecoder().Bytes(b); err == nil {
				return string(out)
			}
		}
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
