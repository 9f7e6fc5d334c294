package analysis

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize reduces a user-entered URL or domain to the bare host every
// check runs against: scheme, credentials, "www." prefixes, port, path,
// query and fragment are removed and the host is lower-cased. Unicode
// hosts are converted to their punycode form. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}

	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	host = bareHost(strings.Trim(host, "[]"))
	if host == "" {
		return ""
	}
	// IDNA mapping can surface a "www." prefix or trailing dots spelled
	// with fullwidth or ideographic characters.
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = bareHost(ascii)
	}
	return host
}

func bareHost(host string) string {
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	return strings.TrimRight(host, ".")
}

// TargetURL returns the https URL sent to URL-based checks
func TargetURL(subject string) string {
	if subject == "" {
		return ""
	}
	return "https://" + subject
}
