package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "sitepulse/internal/errors"
)

// RetryState describes an outstanding retry-eligible failure
type RetryState struct {
	CurrentAttempt int           `json:"current_attempt"`
	MaxAttempts    int           `json:"max_attempts"`
	NextRetryDelay time.Duration `json:"next_retry_delay"`
	CanRetry       bool          `json:"can_retry"`
}

// StrategyFunc maps a classified error to a retry decision
type StrategyFunc func(*apperrors.AppError) apperrors.RetryStrategy

// RetryListener observes every scheduled retry
type RetryListener func(ctx context.Context, feature string, attempt int, delay time.Duration)

// Executor runs work with uniform error handling. One executor belongs to
// one task; its error and retry state describe that task's latest call.
type Executor struct {
	mu         sync.RWMutex
	err        *apperrors.AppError
	retryState *RetryState
	retrying   bool
	live       *retryControl

	strategy   StrategyFunc
	multiplier float64
	jitter     float64
	onRetry    RetryListener
	logger     *slog.Logger
}

// retryControl links manual retries to the running retry driver
type retryControl struct {
	trigger chan struct{}
	waiters []retryWaiter
}

// retryWaiter receives the outcome of the first attempt numbered at least
// fromAttempt, or the terminal outcome
type retryWaiter struct {
	fromAttempt int
	ch          chan retryOutcome
}

type retryOutcome struct {
	value any
	err   error
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithStrategy replaces apperrors.GetRetryStrategy
func WithStrategy(fn StrategyFunc) ExecutorOption {
	return func(e *Executor) { e.strategy = fn }
}

// WithPolicy classifies errors against a configured policy
func WithPolicy(policy apperrors.RetryPolicy) ExecutorOption {
	return WithStrategy(policy.Strategy)
}

// WithMultiplier sets the exponential growth factor
func WithMultiplier(m float64) ExecutorOption {
	return func(e *Executor) { e.multiplier = m }
}

// WithJitter sets the backoff randomization factor
func WithJitter(j float64) ExecutorOption {
	return func(e *Executor) { e.jitter = j }
}

// WithRetryListener registers a hook called for every scheduled retry
func WithRetryListener(fn RetryListener) ExecutorOption {
	return func(e *Executor) { e.onRetry = fn }
}

// WithLogger sets the executor logger
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an executor using apperrors.GetRetryStrategy
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		strategy:   apperrors.GetRetryStrategy,
		multiplier: 2.0,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWithErrorHandling runs work once and, when the classified failure
// allows it, retries it under the strategy's schedule. The final error is
// returned to the caller after being recorded as the executor's current
// error.
func ExecuteWithErrorHandling[T any](ctx context.Context, e *Executor, work func(context.Context) (T, error), feature, subject string) (T, error) {
	e.ClearError()

	value, err := work(ctx)
	if err == nil {
		return value, nil
	}

	appErr := apperrors.CreateAppError(err, feature, subject)
	strategy := e.strategy(appErr)

	e.mu.Lock()
	if !strategy.ShouldRetry {
		e.err = appErr
		e.mu.Unlock()

		e.logger.WarnContext(ctx, "operation_failed",
			slog.String("feature", feature),
			slog.String("subject", subject),
			slog.String("error_type", string(appErr.Type)),
			slog.String("error", err.Error()))
		return value, err
	}
	ctl := &retryControl{trigger: make(chan struct{}, 1)}
	e.err = appErr
	e.live = ctl
	e.retryState = &RetryState{
		MaxAttempts:    strategy.MaxAttempts,
		NextRetryDelay: strategy.Delay,
		CanRetry:       true,
	}
	e.mu.Unlock()

	cfg := RetryConfig{
		MaxAttempts:  strategy.MaxAttempts,
		InitialDelay: strategy.Delay,
		MaxDelay:     strategy.MaxDelay,
		Multiplier:   e.multiplier,
		Exponential:  strategy.UseExponentialBackoff,
		Jitter:       e.jitter,
		Trigger:      ctl.trigger,
		ShouldRetry: func(err error) bool {
			return e.strategy(apperrors.CreateAppError(err, feature, subject)).ShouldRetry
		},
	}

	for ev := range ExecuteWithRetry(ctx, work, cfg) {
		switch ev.Type {
		case EventRetryScheduled:
			e.mu.Lock()
			e.retrying = true
			if e.retryState != nil {
				e.retryState.CurrentAttempt = ev.Attempt
				e.retryState.NextRetryDelay = ev.Delay
				e.retryState.CanRetry = ev.Attempt < strategy.MaxAttempts
			}
			e.mu.Unlock()

			e.logger.InfoContext(ctx, "retry_scheduled",
				slog.String("feature", feature),
				slog.String("subject", subject),
				slog.Int("attempt", ev.Attempt),
				slog.Int("max_attempts", strategy.MaxAttempts),
				slog.Duration("delay", ev.Delay))
			if e.onRetry != nil {
				e.onRetry(ctx, feature, ev.Attempt, ev.Delay)
			}

		case EventAttemptFailed:
			e.mu.Lock()
			e.err = apperrors.CreateAppError(ev.Err, feature, subject)
			e.mu.Unlock()
			e.settleWaiters(ctl, ev.Attempt, false, retryOutcome{err: ev.Err})

		case EventSucceeded:
			e.settleWaiters(ctl, ev.Attempt, true, retryOutcome{value: ev.Value})
			e.ClearError()
			return ev.Value, nil

		case EventFailed:
			final := ev.Err
			if final == nil {
				final = err
			}
			e.settleWaiters(ctl, ev.Attempt, true, retryOutcome{err: final})
			e.mu.Lock()
			e.err = apperrors.CreateAppError(final, feature, subject)
			e.retryState = nil
			e.retrying = false
			e.live = nil
			e.mu.Unlock()

			e.logger.WarnContext(ctx, "operation_failed",
				slog.String("feature", feature),
				slog.String("subject", subject),
				slog.Int("retries", ev.Attempt),
				slog.String("error", final.Error()))
			var zero T
			return zero, final
		}
	}

	// unreachable: the driver always sends a terminal event
	var zero T
	return zero, err
}

// Retry makes the running retry sequence attempt again now instead of
// waiting out its backoff, and returns the outcome of that attempt. No
// second call is issued alongside the sequence. It returns ok=false when
// the held retry state does not allow a retry.
func (e *Executor) Retry(ctx context.Context) (value any, ok bool, err error) {
	e.mu.Lock()
	ctl := e.live
	if ctl == nil || e.retryState == nil || !e.retryState.CanRetry {
		e.mu.Unlock()
		return nil, false, nil
	}
	w := retryWaiter{fromAttempt: e.retryState.CurrentAttempt, ch: make(chan retryOutcome, 1)}
	ctl.waiters = append(ctl.waiters, w)
	e.mu.Unlock()

	select {
	case ctl.trigger <- struct{}{}:
	default:
	}

	select {
	case out := <-w.ch:
		return out.value, true, out.err
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// settleWaiters hands an attempt outcome to the manual retries waiting on
// it. A terminal outcome releases every waiter.
func (e *Executor) settleWaiters(ctl *retryControl, attempt int, terminal bool, out retryOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := ctl.waiters[:0]
	for _, w := range ctl.waiters {
		if terminal || attempt >= w.fromAttempt {
			w.ch <- out
			continue
		}
		kept = append(kept, w)
	}
	ctl.waiters = kept
}

// ClearError resets the error, retry state, retrying flag and the link to
// a running retry sequence
func (e *Executor) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.err = nil
	e.retryState = nil
	e.retrying = false
	e.live = nil
}

// Err returns the current classified error, if any
func (e *Executor) Err() *apperrors.AppError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// RetryState returns a copy of the outstanding retry state, or nil
func (e *Executor) RetryState() *RetryState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.retryState == nil {
		return nil
	}
	state := *e.retryState
	return &state
}

// IsRetrying reports whether a retry sequence is in progress
func (e *Executor) IsRetrying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retrying
}
