package analysis

import (
	"fmt"
	"strings"
)

// Kind identifies one analysis check
type Kind string

const (
	KindPerformance Kind = "performance"
	KindMonitor     Kind = "monitor"
	KindSSL         Kind = "ssl"
	KindDNS         Kind = "dns"
	KindSitemap     Kind = "sitemap"
	KindAPI         Kind = "api"
	KindLinks       Kind = "links"
	KindTypography  Kind = "typography"
)

// Sequence is the order a run executes the checks in
var Sequence = []Kind{
	KindPerformance,
	KindMonitor,
	KindSSL,
	KindDNS,
	KindSitemap,
	KindAPI,
	KindLinks,
	KindTypography,
}

// Names are the display names shown on result tabs
var Names = map[Kind]string{
	KindPerformance: "Performance",
	KindMonitor:     "Uptime Monitor",
	KindSSL:         "SSL Certificate",
	KindDNS:         "DNS Records",
	KindSitemap:     "Sitemap",
	KindAPI:         "API Endpoints",
	KindLinks:       "Link Checker",
	KindTypography:  "Typography",
}

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// DisplayName returns the tab title for k
func (k Kind) DisplayName() string {
	if name, ok := Names[k]; ok {
		return name
	}
	return string(k)
}

// Valid reports whether k is part of Sequence
func (k Kind) Valid() bool {
	_, ok := Names[k]
	return ok
}

// Index returns the position of k in Sequence, or -1
func (k Kind) Index() int {
	for i, kind := range Sequence {
		if kind == k {
			return i
		}
	}
	return -1
}

// ParseKind converts a path or query value into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown analysis %q", s)
	}
	return k, nil
}
