// Package pathsafe derives filesystem names from untrusted strings such as
// recipient addresses and attachment filenames, and checks that the paths
// built from them stay inside a sanctioned root.
package pathsafe

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsafePath is matched by every SecurityError.
var ErrUnsafePath = errors.New("path escapes sanctioned root")

// SecurityError reports a path that resolved outside its root.
type SecurityError struct {
	Input string
	Root  string
	Path  string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("unsafe path for %q: %s is outside %s", e.Input, e.Path, e.Root)
}

// Is makes errors.Is(err, ErrUnsafePath) succeed.
func (e *SecurityError) Is(target error) bool {
	return target == ErrUnsafePath
}

var (
	mailboxUnsafe    = regexp.MustCompile(`[^a-z0-9@._\-]+`)
	attachmentUnsafe = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)
)

// Sanitizer maps recipient addresses to mailbox directories under a fixed root.
type Sanitizer struct {
	root string
}

// New returns a Sanitizer rooted at the absolute form of root.
func New(root string) (*Sanitizer, error) {
	if root == "" {
		return nil, errors.New("mailbox root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving mailbox root: %w", err)
	}
	return &Sanitizer{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute mailbox root.
func (s *Sanitizer) Root() string {
	return s.root
}

// DirName returns the sanitized directory name for an address without
// resolving it against the root.
func DirName(address string) string {
	return mailboxUnsafe.ReplaceAllString(strings.ToLower(address), "_")
}

// MailboxPath returns the mailbox directory for address. The result is
// always the root itself or a path below it; anything else is reported as
// a *SecurityError.
func (s *Sanitizer) MailboxPath(address string) (string, error) {
	p := filepath.Join(s.root, DirName(address))
	if !Contained(s.root, p) {
		return "", &SecurityError{Input: address, Root: s.root, Path: p}
	}
	return p, nil
}

// AttachmentID returns a filesystem-safe identifier for an attachment
// filename: the md5 of the sanitized basename, an underscore, then the
// sanitized basename. The payload is not consulted, so equal names yield
// equal ids.
func AttachmentID(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if base == "" {
		base = "file"
	}
	base = attachmentUnsafe.ReplaceAllString(base, "_")
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:]) + "_" + base
}

// Contained reports whether path, once cleaned, equals root or lies below it.
func Contained(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
