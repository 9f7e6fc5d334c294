package errors

import "time"

// RetryStrategy tells the executor whether and how to retry a failure
type RetryStrategy struct {
	ShouldRetry           bool
	MaxAttempts           int
	Delay                 time.Duration
	MaxDelay              time.Duration
	UseExponentialBackoff bool
}

// RetryPolicy holds the tunables GetRetryStrategy works from
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the config defaults
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

// GetRetryStrategy applies DefaultRetryPolicy to appErr
func GetRetryStrategy(appErr *AppError) RetryStrategy {
	return DefaultRetryPolicy.Strategy(appErr)
}

// Strategy maps an AppError to a retry decision.
//
// Network, server and timeout errors back off exponentially. Rate limits
// wait a constant delay, honouring Retry-After. Everything else fails
// immediately.
func (p RetryPolicy) Strategy(appErr *AppError) RetryStrategy {
	if appErr == nil || !appErr.Retryable {
		return RetryStrategy{}
	}

	s := RetryStrategy{
		ShouldRetry:           true,
		MaxAttempts:           p.MaxAttempts,
		Delay:                 p.InitialDelay,
		MaxDelay:              p.MaxDelay,
		UseExponentialBackoff: true,
	}

	switch appErr.Type {
	case ErrTypeRateLimit:
		s.UseExponentialBackoff = false
		s.Delay = 2 * p.InitialDelay
		if appErr.RetryAfter > s.Delay {
			s.Delay = appErr.RetryAfter
		}
		if s.MaxDelay > 0 && s.Delay > s.MaxDelay {
			s.Delay = s.MaxDelay
		}
	case ErrTypeTimeout:
		// a slow endpoint rarely recovers within many attempts
		if s.MaxAttempts > 2 {
			s.MaxAttempts = 2
		}
	}

	if s.MaxAttempts <= 0 {
		s.ShouldRetry = false
	}
	return s
}
