package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EventType tags an Event emitted by the retry driver
type EventType string

const (
	EventRetryScheduled EventType = "retry_scheduled"
	EventAttemptFailed  EventType = "attempt_failed"
	EventSucceeded      EventType = "succeeded"
	EventFailed         EventType = "failed"
)

// Event is one step of a retry sequence.
// Attempt counts retries, starting at 1. Succeeded and Failed are terminal
// and are always the last value before the channel closes.
type Event[T any] struct {
	Type    EventType
	Attempt int
	Delay   time.Duration
	Value   T
	Err     error
}

// Terminal reports whether the event ends the sequence
func (e Event[T]) Terminal() bool {
	return e.Type == EventSucceeded || e.Type == EventFailed
}

// RetryConfig drives ExecuteWithRetry
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Exponential  bool
	// Jitter is the backoff randomization factor; zero keeps delays exact
	Jitter float64
	// ShouldRetry decides whether a failure may be retried again.
	// A nil func retries every failure.
	ShouldRetry func(error) bool
	// Trigger cuts the pending wait short; the next attempt starts at once
	Trigger <-chan struct{}
}

// NewBackOff builds the delay schedule for cfg, bounded to MaxAttempts
func (cfg RetryConfig) NewBackOff() backoff.BackOff {
	var b backoff.BackOff
	if cfg.Exponential {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = cfg.InitialDelay
		exp.RandomizationFactor = cfg.Jitter
		if cfg.Multiplier >= 1 {
			exp.Multiplier = cfg.Multiplier
		}
		if cfg.MaxDelay > 0 {
			exp.MaxInterval = cfg.MaxDelay
		}
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	} else {
		b = backoff.NewConstantBackOff(cfg.InitialDelay)
	}

	attempts := cfg.MaxAttempts
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithMaxRetries(b, uint64(attempts))
}

// ExecuteWithRetry retries work after a failed initial attempt made by the
// caller. Before each retry it emits EventRetryScheduled and waits the
// scheduled delay. It stops on success, when MaxAttempts retries are used
// up, when ShouldRetry rejects a failure, or when ctx is done.
//
// The returned channel is buffered for the whole sequence, so the driver
// never blocks on a slow consumer. It is closed after the terminal event.
func ExecuteWithRetry[T any](ctx context.Context, work func(context.Context) (T, error), cfg RetryConfig) <-chan Event[T] {
	events := make(chan Event[T], 2*max(cfg.MaxAttempts, 0)+1)

	go func() {
		defer close(events)

		schedule := cfg.NewBackOff()
		var lastErr error

		for attempt := 1; ; attempt++ {
			delay := schedule.NextBackOff()
			if delay == backoff.Stop {
				var zero T
				events <- Event[T]{Type: EventFailed, Attempt: attempt - 1, Value: zero, Err: lastErr}
				return
			}

			events <- Event[T]{Type: EventRetryScheduled, Attempt: attempt, Delay: delay}

			if err := sleep(ctx, delay, cfg.Trigger); err != nil {
				events <- Event[T]{Type: EventFailed, Attempt: attempt, Err: err}
				return
			}

			value, err := work(ctx)
			if err == nil {
				events <- Event[T]{Type: EventSucceeded, Attempt: attempt, Value: value}
				return
			}
			lastErr = err

			if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
				events <- Event[T]{Type: EventFailed, Attempt: attempt, Err: err}
				return
			}
			if attempt < cfg.MaxAttempts {
				events <- Event[T]{Type: EventAttemptFailed, Attempt: attempt, Err: err}
			}
		}
	}()

	return events
}

func sleep(ctx context.Context, d time.Duration, trigger <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-trigger:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
