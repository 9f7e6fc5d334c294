package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Check endpoint paths served by FakeBackend
const (
	PathPerformance = "/api/analyze"
	PathMonitor     = "/api/monitor"
	PathSSL         = "/api/ssl"
	PathDNS         = "/api/dns"
	PathSitemap     = "/api/sitemap"
	PathAPI         = "/api/api-test"
	PathLinks       = "/api/links"
	PathTypography  = "/api/typography"
)

// Call is one request observed by FakeBackend
type Call struct {
	Path          string
	Body          map[string]any
	Authorization string
	Start         time.Time
	End           time.Time
}

type scriptedResponse struct {
	status int
	body   any
}

// FakeBackend is an httptest.Server that imitates the analysis check service
type FakeBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]scriptedResponse
	failures  map[string][]scriptedResponse
	delays    map[string]time.Duration
	calls     []Call
}

// NewFakeBackend starts a backend answering every check endpoint with a
// healthy default payload. It is closed with t.Cleanup.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		responses: make(map[string]scriptedResponse),
		failures:  make(map[string][]scriptedResponse),
		delays:    make(map[string]time.Duration),
	}
	for path, body := range DefaultPayloads() {
		b.responses[path] = scriptedResponse{status: http.StatusOK, body: body}
	}

	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the base URL of the backend
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// SetResponse replaces the steady-state response for path
func (b *FakeBackend) SetResponse(path string, status int, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[path] = scriptedResponse{status: status, body: body}
}

// FailPath makes every call to path fail with status and an error body
func (b *FakeBackend) FailPath(path string, status int, message string) {
	b.SetResponse(path, status, map[string]any{"error": message})
}

// FailTimes makes the next n calls to path fail before the steady-state
// response is served again.
func (b *FakeBackend) FailTimes(path string, n int, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.failures[path] = append(b.failures[path], scriptedResponse{
			status: status,
			body:   map[string]any{"message": message},
		})
	}
}

// Delay holds every response for path by d
func (b *FakeBackend) Delay(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[path] = d
}

// Calls returns how many requests reached path
func (b *FakeBackend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// CallLog returns every observed request in completion order
func (b *FakeBackend) CallLog() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	delay := b.delays[r.URL.Path]
	resp, ok := b.responses[r.URL.Path]
	if queue := b.failures[r.URL.Path]; len(queue) > 0 {
		resp, ok = queue[0], true
		b.failures[r.URL.Path] = queue[1:]
	}
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
	}

	if !ok {
		resp = scriptedResponse{status: http.StatusNotFound, body: map[string]any{"error": "no such endpoint"}}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_ = json.NewEncoder(w).Encode(resp.body)

	b.mu.Lock()
	b.calls = append(b.calls, Call{
		Path:          r.URL.Path,
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
		Start:         start,
		End:           time.Now(),
	})
	b.mu.Unlock()
}

// DefaultPayloads returns a healthy response body per check endpoint
func DefaultPayloads() map[string]any {
	return map[string]any{
		PathPerformance: map[string]any{
			"success": true,
			"data": map[string]any{
				"url":             "https://example.com",
				"score":           92,
				"loadTime":        1240,
				"fcp":             610,
				"lcp":             1180,
				"cls":             0.02,
				"tbt":             40,
				"pageSize":        482133,
				"requests":        37,
				"recommendations": []string{"Serve images in next-gen formats"},
			},
		},
		PathMonitor: map[string]any{
			"url":          "https://example.com",
			"status":       "up",
			"statusCode":   200,
			"responseTime": 183,
			"uptime":       99.98,
			"checkedAt":    "2026-01-01T00:00:00Z",
		},
		PathSSL: map[string]any{
			"domain":          "example.com",
			"valid":           true,
			"issuer":          "R3",
			"subject":         "example.com",
			"validFrom":       "2025-11-01T00:00:00Z",
			"validTo":         "2026-11-01T00:00:00Z",
			"daysUntilExpiry": 120,
			"protocol":        "TLSv1.3",
			"grade":           "A",
			"san":             []string{"example.com", "www.example.com"},
		},
		PathDNS: map[string]any{
			"domain": "example.com",
			"A":      []string{"93.184.216.34"},
			"AAAA":   []string{"2606:2800:220:1:248:1893:25c8:1946"},
			"MX":     []map[string]any{{"exchange": "mail.example.com", "priority": 10}},
			"NS":     []string{"a.iana-servers.net", "b.iana-servers.net"},
			"TXT":    []string{"v=spf1 -all"},
		},
		PathSitemap: map[string]any{
			"url":        "https://example.com",
			"sitemapUrl": "https://example.com/sitemap.xml",
			"found":      true,
			"urlCount":   2,
			"urls":       []string{"https://example.com/", "https://example.com/about"},
		},
		PathAPI: map[string]any{
			"url": "https://example.com",
			"endpoints": []map[string]any{
				{"path": "/api/health", "method": "GET", "statusCode": 200, "responseTime": 42, "ok": true},
			},
			"healthy": 1,
			"failed":  0,
		},
		PathLinks: map[string]any{
			"url":           "https://example.com",
			"totalLinks":    24,
			"internalLinks": 18,
			"externalLinks": 6,
			"brokenLinks":   []map[string]any{},
		},
		PathTypography: map[string]any{
			"url": "https://example.com",
			"fonts": []map[string]any{
				{"family": "Inter", "weights": []int{400, 600}, "source": "google"},
			},
			"baseFontSize": 16,
			"lineHeight":   1.5,
			"issues":       []string{},
		},
	}
}
