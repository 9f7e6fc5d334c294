// Package shared holds helpers used across SitePulse packages.
//
// The testutil subpackage provides a capturing slog handler and a fake
// analysis backend (an httptest.Server speaking the eight check endpoints)
// so that packages can be tested without a real check service:
//
//	backend := testutil.NewFakeBackend(t)
//	backend.FailPath("/api/ssl", http.StatusBadGateway, "upstream down")
//	client := analysis.NewClient(analysis.ClientConfig{BaseURL: backend.URL()})
package shared
