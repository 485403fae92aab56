package mailbox

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/abyssox/opentrashmail/internal/testutil"
)

func TestIDsSortedAndFiltered(t *testing.T) {
	root := testutil.SetupTestMailboxes(t, []testutil.TestMailbox{{
		Address: "a@example.com",
		Webhook: `{"enabled":false}`,
		Records: map[string]string{
			"20":  `{}`,
			"3":   `{}`,
			"100": `{}`,
			"x1":  `{}`,
		},
	}})
	s := newTestStore(t, root)

	ids, err := s.IDs("a@example.com")
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	if want := []string{"3", "20", "100"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("IDs() = %v, want %v", ids, want)
	}

	missing, err := s.IDs("nobody@example.com")
	if err != nil || len(missing) != 0 {
		t.Errorf("IDs(missing) = %v, %v", missing, err)
	}
}

func TestListAndGet(t *testing.T) {
	s := newTestStore(t, testutil.SetupDefaultTestMailboxes(t))

	items, err := s.List("user@example.com", true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("List() = %+v", items)
	}
	it := items[0]
	if it.ID != "1700000000000" || it.Subject != "hi" || it.From != "alice@example.org" {
		t.Errorf("summary = %+v", it)
	}
	if it.MailLen != len("Subject: hi\r\n\r\nhello\r\n") || len(it.MD5) != 32 {
		t.Errorf("summary len/md5 = %d %q", it.MailLen, it.MD5)
	}
	if len(it.Attachments) != 1 || it.Attachments[0] != "https://mail.example.com/api/attachment/user@example.com/8c7dd922ad47494fc02c388e12c00eac_file" {
		t.Errorf("attachments = %v", it.Attachments)
	}

	if _, err := s.Get("user@example.com", "../x"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Get(bad id) error = %v", err)
	}
	if _, err := s.Get("user@example.com", "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestAttachmentPath(t *testing.T) {
	root := testutil.SetupDefaultTestMailboxes(t)
	s := newTestStore(t, root)

	fid := "8c7dd922ad47494fc02c388e12c00eac_file"
	p, err := s.AttachmentPath("user@example.com", fid)
	if err != nil {
		t.Fatalf("AttachmentPath() error = %v", err)
	}
	if p != filepath.Join(s.Root(), "user@example.com", "attachments", fid) {
		t.Errorf("AttachmentPath() = %q", p)
	}

	// Directory components are dropped, so traversal resolves to a missing file.
	for _, bad := range []string{"../1700000000000.json", "..", "", "/etc/passwd", "missing"} {
		if _, err := s.AttachmentPath("user@example.com", bad); err == nil {
			t.Errorf("AttachmentPath(%q) expected error", bad)
		}
	}
}

func TestDeleteMessage(t *testing.T) {
	root := testutil.SetupDefaultTestMailboxes(t)
	s := newTestStore(t, root)

	if err := s.DeleteMessage("user@example.com", "1700000000000"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	files := testutil.ListFiles(t, filepath.Join(root, "user@example.com"))
	if len(files) != 0 {
		t.Errorf("files left after delete: %v", files)
	}
	if err := s.DeleteMessage("user@example.com", "1700000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMessage() error = %v", err)
	}
}

func TestDeleteMailbox(t *testing.T) {
	root := testutil.SetupDefaultTestMailboxes(t)
	s := newTestStore(t, root)

	if err := s.DeleteMailbox("user@example.com"); err != nil {
		t.Fatalf("DeleteMailbox() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "user@example.com")); !os.IsNotExist(err) {
		t.Error("mailbox still exists")
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root removed: %v", err)
	}
	if err := s.DeleteMailbox("user@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMailbox() error = %v", err)
	}
}

func TestAddresses(t *testing.T) {
	root := testutil.SetupDefaultTestMailboxes(t)
	if err := os.Mkdir(filepath.Join(root, "not-an-address"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t, root)

	got, err := s.Addresses()
	if err != nil {
		t.Fatalf("Addresses() error = %v", err)
	}
	if want := []string{"hooked@example.com", "user@example.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Addresses() = %v, want %v", got, want)
	}
}
