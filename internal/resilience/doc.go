// Package resilience runs network work under a classification-driven retry
// policy.
//
// ExecuteWithRetry is the low-level driver: it waits a backoff delay before
// each attempt and reports progress as a stream of Events. Executor wraps
// it with error classification (internal/errors), holds the current error
// and RetryState for callers to observe, and supports a single manual
// replay of the last work closure. Breaker guards one endpoint.
package resilience
