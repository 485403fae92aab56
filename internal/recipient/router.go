// Package recipient decides, per envelope recipient, whether mail is
// stored, discarded by domain policy, or rejected as malformed.
package recipient

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of routing one recipient.
type Verdict int

const (
	// Accept means the recipient gets a mailbox record.
	Accept Verdict = iota
	// Reject means the address is malformed.
	Reject
	// Discard means the domain is not accepted and unknown domains are dropped.
	Discard
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Decision is the routing result for one recipient.
type Decision struct {
	Verdict Verdict
	// Address is the lower-cased recipient.
	Address string
	Domain  string
	// Pattern is the allow-list entry that matched, if any.
	Pattern string
	Reason  string
}

var addressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[a-zA-Z0-9]+$`)

// ValidAddress reports whether addr has the local@domain.tld shape required
// of a mailbox address. It does not lower-case addr.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Router applies the domain allow-list.
type Router struct {
	patterns       []string
	discardUnknown bool
}

// NewRouter builds a Router. Patterns are trimmed and lower-cased; empty
// entries are dropped. When discardUnknown is false the allow-list is only
// reported in decisions and never enforced.
func NewRouter(patterns []string, discardUnknown bool) *Router {
	r := &Router{discardUnknown: discardUnknown}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			r.patterns = append(r.patterns, p)
		}
	}
	return r
}

// Route decides what happens to mail for addr.
func (r *Router) Route(addr string) Decision {
	addr = strings.ToLower(addr)
	d := Decision{Address: addr}

	if !ValidAddress(addr) {
		d.Verdict = Reject
		d.Reason = "invalid recipient address"
		return d
	}
	_, d.Domain, _ = strings.Cut(addr, "@")

	d.Pattern = r.match(d.Domain)
	if d.Pattern == "" && r.discardUnknown {
		d.Verdict = Discard
		d.Reason = "domain not accepted"
		return d
	}

	d.Verdict = Accept
	return d
}

// match returns the first pattern matching domain, or "". A pattern with
// "*" matches any domain ending in the pattern with the stars removed.
func (r *Router) match(domain string) string {
	for _, p := range r.patterns {
		if strings.Contains(p, "*") {
			if strings.HasSuffix(domain, strings.ReplaceAll(p, "*", "")) {
				return p
			}
			continue
		}
		if domain == p {
			return p
		}
	}
	return ""
}
