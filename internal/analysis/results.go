package analysis

import (
	"fmt"
	"time"

	apperrors "sitepulse/internal/errors"
)

// PerformanceResult holds page speed metrics. Timings are milliseconds.
type PerformanceResult struct {
	URL             string   `json:"url"`
	Score           int      `json:"score"`
	LoadTime        float64  `json:"loadTime"`
	FCP             float64  `json:"fcp"`
	LCP             float64  `json:"lcp"`
	CLS             float64  `json:"cls"`
	TBT             float64  `json:"tbt"`
	PageSize        int64    `json:"pageSize"`
	Requests        int      `json:"requests"`
	Recommendations []string `json:"recommendations"`
}

// MonitorResult is one uptime probe
type MonitorResult struct {
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	StatusCode   int       `json:"statusCode"`
	ResponseTime float64   `json:"responseTime"`
	Uptime       float64   `json:"uptime"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// SSLResult describes the certificate served for a domain
type SSLResult struct {
	Domain          string    `json:"domain"`
	Valid           bool      `json:"valid"`
	Issuer          string    `json:"issuer"`
	Subject         string    `json:"subject"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidTo         time.Time `json:"validTo"`
	DaysUntilExpiry int       `json:"daysUntilExpiry"`
	Protocol        string    `json:"protocol"`
	Grade           string    `json:"grade"`
	SAN             []string  `json:"san"`
}

// MXRecord is a mail exchanger entry
type MXRecord struct {
	Exchange string `json:"exchange"`
	Priority int    `json:"priority"`
}

// DNSResult holds the record sets resolved for a domain
type DNSResult struct {
	Domain string     `json:"domain"`
	A      []string   `json:"A"`
	AAAA   []string   `json:"AAAA"`
	MX     []MXRecord `json:"MX"`
	NS     []string   `json:"NS"`
	TXT    []string   `json:"TXT"`
}

// Validate rejects a lookup that resolved nothing
func (r DNSResult) Validate() error {
	if len(r.A)+len(r.AAAA)+len(r.MX)+len(r.NS)+len(r.TXT) == 0 {
		return apperrors.NewSemanticError(fmt.Sprintf("no DNS records found for %s", r.Domain))
	}
	return nil
}

// SitemapResult reports the sitemap discovered for a site
type SitemapResult struct {
	URL        string   `json:"url"`
	SitemapURL string   `json:"sitemapUrl"`
	Found      bool     `json:"found"`
	URLCount   int      `json:"urlCount"`
	URLs       []string `json:"urls"`
}

// EndpointProbe is the outcome of one probed API endpoint
type EndpointProbe struct {
	Path         string  `json:"path"`
	Method       string  `json:"method"`
	StatusCode   int     `json:"statusCode"`
	ResponseTime float64 `json:"responseTime"`
	OK           bool    `json:"ok"`
}

// APIProbeResult summarizes probed API endpoints
type APIProbeResult struct {
	URL       string          `json:"url"`
	Endpoints []EndpointProbe `json:"endpoints"`
	Healthy   int             `json:"healthy"`
	Failed    int             `json:"failed"`
}

// BrokenLink is a link that did not resolve
type BrokenLink struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Reason     string `json:"reason,omitempty"`
}

// LinkCheckResult counts the links found on a page
type LinkCheckResult struct {
	URL           string       `json:"url"`
	TotalLinks    int          `json:"totalLinks"`
	InternalLinks int          `json:"internalLinks"`
	ExternalLinks int          `json:"externalLinks"`
	BrokenLinks   []BrokenLink `json:"brokenLinks"`
}

// Font is a font family used on a page
type Font struct {
	Family  string `json:"family"`
	Weights []int  `json:"weights"`
	Source  string `json:"source"`
}

// TypographyResult describes the fonts and text metrics of a page
type TypographyResult struct {
	URL          string   `json:"url"`
	Fonts        []Font   `json:"fonts"`
	BaseFontSize float64  `json:"baseFontSize"`
	LineHeight   float64  `json:"lineHeight"`
	Issues       []string `json:"issues"`
}
