// Package mimeparse splits a raw RFC 5322 message into the flat part list
// consumed by the message normalizer.
package mimeparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	gomessage "github.com/emersion/go-message"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/abyssox/opentrashmail/internal/message"
)

// maxDepth bounds multipart nesting.
const maxDepth = 32

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.MIME.Encoding(charset)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("unhandled charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// DecodeHeader decodes RFC 2047 encoded words. Undecodable input is
// returned unchanged.
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// Parse walks raw in document order. Multipart containers are emitted as
// parts with an empty body so the normalizer sees the full structure.
//
// The returned Parsed is always usable. When the top-level header cannot
// be read, it holds the whole input as one text/plain part; when a nested
// part is malformed, it holds everything read up to that point. err
// describes what was lost in either case.
func Parse(raw []byte) (message.Parsed, error) {
	e, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return message.Parsed{
			Parts: []message.Part{{ContentType: "text/plain", Body: raw}},
		}, fmt.Errorf("reading message header: %w", err)
	}

	p := message.Parsed{
		Subject: strings.TrimSpace(DecodeHeader(e.Header.Get("Subject"))),
		From:    strings.TrimSpace(DecodeHeader(e.Header.Get("From"))),
	}
	err = walk(e, 0, &p.Parts)
	return p, err
}

func walk(e *gomessage.Entity, depth int, parts *[]message.Part) error {
	part := describe(e.Header)

	if mr := e.MultipartReader(); mr != nil {
		*parts = append(*parts, part)
		if depth >= maxDepth {
			return fmt.Errorf("multipart nesting deeper than %d", maxDepth)
		}
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !tolerable(err) {
				return fmt.Errorf("reading %s part: %w", part.ContentType, err)
			}
			if err := walk(child, depth+1, parts); err != nil {
				return err
			}
		}
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return fmt.Errorf("reading %s body: %w", part.ContentType, err)
	}
	part.Body = body
	*parts = append(*parts, part)
	return nil
}

func describe(h gomessage.Header) message.Part {
	p := message.Part{
		ContentType:  "text/plain",
		ContentID:    h.Get("Content-Id"),
		AttachmentID: h.Get("X-Attachment-Id"),
	}

	mediaType, params, err := h.ContentType()
	if err == nil && mediaType != "" {
		p.ContentType = strings.ToLower(mediaType)
		p.Charset = strings.ToLower(strings.TrimSpace(params["charset"]))
	}

	if _, dparams, err := h.ContentDisposition(); err == nil && dparams["filename"] != "" {
		p.Filename = DecodeHeader(dparams["filename"])
	} else if params["name"] != "" {
		p.Filename = DecodeHeader(params["name"])
	}
	return p
}

// tolerable reports errors after which go-message still hands back a
// readable entity with the undecoded body.
func tolerable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}
