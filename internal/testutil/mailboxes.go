// Package testutil provides test helpers for building mail fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abyssox/opentrashmail/internal/pathsafe"
)

// TestMailbox describes one mailbox directory to create.
type TestMailbox struct {
	Address string
	// Webhook is written verbatim to webhook.json when non-empty.
	Webhook string
	// Records maps a record id (millisecond timestamp) to its JSON document.
	Records map[string]string
	// Attachments maps a file id to its contents.
	Attachments map[string][]byte
}

// DefaultTestMailboxes returns two mailboxes: one with a stored record and
// an attachment, one with an enabled webhook configuration.
func DefaultTestMailboxes() []TestMailbox {
	return []TestMailbox{
		{
			Address: "user@example.com",
			Records: map[string]string{
				"1700000000000": `{"sender_ip":"192.0.2.1","from":"alice@example.org","rcpts":["user@example.com"],"raw":"Subject: hi\r\n\r\nhello\r\n","parsed":{"subject":"hi","body":"hello\r\n","htmlbody":"","from":"alice@example.org","attachments":["8c7dd922ad47494fc02c388e12c00eac_file"],"attachments_details":[{"filename":"file","cid":"x","id":"8c7dd922ad47494fc02c388e12c00eac_file","download_url":"/api/attachment/user@example.com/8c7dd922ad47494fc02c388e12c00eac_file","size":5}]}}`,
			},
			Attachments: map[string][]byte{
				"8c7dd922ad47494fc02c388e12c00eac_file": []byte("bytes"),
			},
		},
		{
			Address: "hooked@example.com",
			Webhook: `{"enabled":true,"webhook_url":"http://127.0.0.1:1/hook","payload_template":"{\"to\":\"{{to}}\"}"}`,
		},
	}
}

// SetupTestMailboxes creates the on-disk mailbox layout:
//
//	<root>/
//	└── <sanitized address>/
//	    ├── webhook.json
//	    ├── <id>.json
//	    └── attachments/
//	        └── <file id>
//
// Returns the root for use with mailbox.NewStore.
func SetupTestMailboxes(t *testing.T, mailboxes []TestMailbox) string {
	t.Helper()

	root := t.TempDir()

	for _, mb := range mailboxes {
		if err := createMailbox(root, mb); err != nil {
			t.Fatalf("failed to create test mailbox %s: %v", mb.Address, err)
		}
	}

	return root
}

func createMailbox(root string, mb TestMailbox) error {
	dir := filepath.Join(root, pathsafe.DirName(mb.Address))

	if err := os.MkdirAll(filepath.Join(dir, "attachments"), 0o755); err != nil {
		return err
	}

	if mb.Webhook != "" {
		if err := os.WriteFile(filepath.Join(dir, "webhook.json"), []byte(mb.Webhook), 0o644); err != nil {
			return err
		}
	}

	for id, doc := range mb.Records {
		if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(doc), 0o644); err != nil {
			return err
		}
	}

	for fid, data := range mb.Attachments {
		if err := os.WriteFile(filepath.Join(dir, "attachments", fid), data, 0o644); err != nil {
			return err
		}
	}

	return nil
}

// SetupDefaultTestMailboxes creates DefaultTestMailboxes and returns the root.
func SetupDefaultTestMailboxes(t *testing.T) string {
	t.Helper()
	return SetupTestMailboxes(t, DefaultTestMailboxes())
}

// ListFiles returns every regular file below root, relative to it.
func ListFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	return files
}
