// Package mailbox owns the on-disk mailbox tree: one directory per
// recipient holding JSON message records, an attachments directory and an
// optional webhook.json.
package mailbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/abyssox/opentrashmail/internal/message"
	"github.com/abyssox/opentrashmail/internal/metrics"
	"github.com/abyssox/opentrashmail/internal/pathsafe"
)

const (
	attachmentsDir = "attachments"
	webhookFile    = "webhook.json"
	recordExt      = ".json"
)

// StoreConfig holds configuration for creating a Store.
type StoreConfig struct {
	Root      string
	BaseURL   string
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
}

// Store reads and writes mailbox directories below a root.
type Store struct {
	sanitizer *pathsafe.Sanitizer
	baseURL   string
	collector metrics.Collector
	logger    *slog.Logger
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	s, err := pathsafe.New(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("creating mailbox root: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return &Store{
		sanitizer: s,
		baseURL:   cfg.BaseURL,
		collector: collector,
		logger:    logger,
	}, nil
}

// Root returns the absolute mailbox root.
func (s *Store) Root() string {
	return s.sanitizer.Root()
}

// DownloadURL returns the public URL of an attachment in a mailbox.
func (s *Store) DownloadURL(recipient, fileID string) string {
	return message.DownloadURL(s.baseURL, recipient, fileID)
}

// Delivery is one message as handed to Persist. It is shared by all
// recipients of an envelope and never modified.
type Delivery struct {
	// ID names the record file; the capture time in epoch milliseconds.
	ID       string
	SenderIP string
	From     string
	Rcpts    []string
	Raw      string
	Message  *message.Normalized
}

// Stored reports what Persist wrote.
type Stored struct {
	ID              string
	Path            string
	AttachmentPaths []string
	Record          *Record
}

// Persist writes d into the mailbox of recipient. Attachments are written
// first; one whose path would leave the attachments directory is skipped
// and logged. The record is written last and replaces any record with the
// same ID.
func (s *Store) Persist(recipient string, d Delivery) (*Stored, error) {
	dir, err := s.sanitizer.MailboxPath(recipient)
	if err != nil {
		return nil, err
	}
	if dir == s.Root() {
		return nil, &pathsafe.SecurityError{Input: recipient, Root: s.Root(), Path: dir}
	}

	attDir := filepath.Join(dir, attachmentsDir)
	if err := os.MkdirAll(attDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating mailbox %s: %w", recipient, err)
	}

	rec := &Record{
		SenderIP: d.SenderIP,
		From:     d.From,
		Rcpts:    d.Rcpts,
		Raw:      d.Raw,
		Parsed: Parsed{
			Subject: d.Message.Subject,
			Body:    d.Message.Body,
			HTMLBody: d.Message.RewriteHTML(func(fileID string) string {
				return s.DownloadURL(recipient, fileID)
			}),
			From:               d.From,
			Attachments:        []string{},
			AttachmentsDetails: []AttachmentDetail{},
		},
	}
	if rec.Rcpts == nil {
		rec.Rcpts = []string{}
	}

	out := &Stored{ID: d.ID, Record: rec}

	for _, a := range d.Message.Attachments {
		path := filepath.Join(attDir, a.FileID)
		if !strings.HasPrefix(path, attDir+string(filepath.Separator)) {
			s.logger.Error("unsafe attachment path blocked",
				slog.String("rcpt", recipient),
				slog.String("path", path))
			continue
		}
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", a.FileID, err)
		}
		s.collector.AttachmentStored(a.Size())

		out.AttachmentPaths = append(out.AttachmentPaths, path)
		rec.Parsed.Attachments = append(rec.Parsed.Attachments, a.FileID)
		rec.Parsed.AttachmentsDetails = append(rec.Parsed.AttachmentsDetails, AttachmentDetail{
			Filename:    a.Filename,
			CID:         a.CID,
			ID:          a.FileID,
			DownloadURL: s.DownloadURL(recipient, a.FileID),
			Size:        a.Size(),
		})
	}

	doc, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	out.Path = filepath.Join(dir, d.ID+recordExt)
	if err := os.WriteFile(out.Path, doc, 0o644); err != nil {
		return nil, fmt.Errorf("writing record: %w", err)
	}

	return out, nil
}

// encodeRecord marshals without HTML escaping so stored bodies stay readable.
func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ErrNotFound is returned when a mailbox, record or attachment is missing.
var ErrNotFound = errors.New("not found")

// ErrInvalidID is returned for record ids that are not all digits.
var ErrInvalidID = errors.New("invalid message id")
