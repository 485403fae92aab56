package mailbox

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abyssox/opentrashmail/internal/pathsafe"
	"github.com/abyssox/opentrashmail/internal/recipient"
)

// Dir returns the mailbox directory of address without creating it.
func (s *Store) Dir(address string) (string, error) {
	dir, err := s.sanitizer.MailboxPath(address)
	if err != nil {
		return "", err
	}
	if dir == s.Root() {
		return "", &pathsafe.SecurityError{Input: address, Root: s.Root(), Path: dir}
	}
	return dir, nil
}

func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IDs returns the record ids of a mailbox in ascending order. A missing
// mailbox has no ids.
func (s *Store) IDs(address string) ([]string, error) {
	dir, err := s.Dir(address)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mailbox: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), recordExt)
		if !ok || e.IsDir() || !validID(id) {
			continue
		}
		ids = append(ids, id)
	}
	// Equal-length digit strings sort numerically.
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

// Get loads one record.
func (s *Store) Get(address, id string) (*Record, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	dir, err := s.Dir(address)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, id+recordExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

// List summarizes every readable record of a mailbox. Unreadable records
// are skipped.
func (s *Store) List(address string, withBody bool) ([]Summary, error) {
	ids, err := s.IDs(address)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(address, id)
		if err != nil {
			s.logger.Warn("skipping unreadable record",
				"rcpt", address, "id", id, "error", err)
			continue
		}
		sum := md5.Sum([]byte(id + rec.Raw))
		item := Summary{
			Email:   address,
			ID:      id,
			From:    rec.Parsed.From,
			Subject: rec.Parsed.Subject,
			MD5:     hex.EncodeToString(sum[:]),
			MailLen: len(rec.Raw),
		}
		if withBody {
			item.Body = rec.Parsed.Body
			for _, fid := range rec.Parsed.Attachments {
				item.Attachments = append(item.Attachments, s.DownloadURL(address, fid))
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// AttachmentPath returns the path of a stored attachment. Only the base
// name of fileID is used.
func (s *Store) AttachmentPath(address, fileID string) (string, error) {
	dir, err := s.Dir(address)
	if err != nil {
		return "", err
	}
	base := filepath.Base(filepath.Clean("/" + fileID))
	if base == "/" || base == "." || base == ".." {
		return "", ErrNotFound
	}
	attDir := filepath.Join(dir, attachmentsDir)
	path := filepath.Join(attDir, base)
	if !strings.HasPrefix(path, attDir+string(filepath.Separator)) {
		return "", &pathsafe.SecurityError{Input: fileID, Root: attDir, Path: path}
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// DeleteMessage removes a record and the attachments it lists.
func (s *Store) DeleteMessage(address, id string) error {
	rec, err := s.Get(address, id)
	if err != nil {
		return err
	}
	dir, err := s.Dir(address)
	if err != nil {
		return err
	}
	for _, fid := range rec.Parsed.Attachments {
		path, err := s.AttachmentPath(address, fid)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("removing attachment", "rcpt", address, "id", fid, "error", err)
		}
	}
	if err := os.Remove(filepath.Join(dir, id+recordExt)); err != nil {
		return fmt.Errorf("removing record: %w", err)
	}
	return nil
}

// DeleteMailbox removes a whole mailbox directory.
func (s *Store) DeleteMailbox(address string) error {
	dir, err := s.Dir(address)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing mailbox: %w", err)
	}
	return nil
}

// Addresses lists the mailbox directories whose names are valid addresses.
func (s *Store) Addresses() ([]string, error) {
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		return nil, fmt.Errorf("reading mailbox root: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && recipient.ValidAddress(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
