package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/resilience"
)

// ErrSubjectInFlight is returned by Rerun while the task still has a call
// that has not settled.
var ErrSubjectInFlight = errors.New("analysis is already in progress for this check")

// Result is the settled outcome of one Run. Exactly one of Value, Err or
// Skipped is set.
type Result[T any] struct {
	Value   *T
	Err     error
	Skipped bool
}

// OK reports whether the run produced a value
func (r Result[T]) OK() bool {
	return r.Value != nil && r.Err == nil
}

// Any drops the type parameter
func (r Result[T]) Any() Result[any] {
	out := Result[any]{Err: r.Err, Skipped: r.Skipped}
	if r.Value != nil {
		var v any = *r.Value
		out.Value = &v
	}
	return out
}

// FetchFunc performs one check against subject
type FetchFunc[T any] func(ctx context.Context, subject string) (T, error)

// View is a read-only snapshot of a task
type View struct {
	Kind       Kind                   `json:"kind"`
	Name       string                 `json:"name"`
	Input      string                 `json:"input"`
	Subject    string                 `json:"subject"`
	Busy       bool                   `json:"busy"`
	Retrying   bool                   `json:"retrying"`
	Error      string                 `json:"error,omitempty"`
	ErrorType  string                 `json:"error_type,omitempty"`
	RetryState *resilience.RetryState `json:"retry_state,omitempty"`
	Result     any                    `json:"result"`
	Attempted  []string               `json:"attempted"`
}

// Runner is the type-erased surface the orchestrator drives
type Runner interface {
	Kind() Kind
	SetInput(raw string)
	Execute(ctx context.Context) Result[any]
	Rerun(ctx context.Context) Result[any]
	Retry(ctx context.Context) (Result[any], bool)
	ScheduleAutoRun(ctx context.Context, delay time.Duration) bool
	View() View
}

type taskOptions struct {
	executor *resilience.Executor
	notifier Notifier
	logger   *slog.Logger
	input    string
}

// TaskOption configures a Task
type TaskOption func(*taskOptions)

// WithExecutor sets the executor the task calls through
func WithExecutor(e *resilience.Executor) TaskOption {
	return func(o *taskOptions) { o.executor = e }
}

// WithNotifier sets the toast sink
func WithNotifier(n Notifier) TaskOption {
	return func(o *taskOptions) { o.notifier = n }
}

// WithTaskLogger sets the task logger
func WithTaskLogger(logger *slog.Logger) TaskOption {
	return func(o *taskOptions) { o.logger = logger }
}

// WithInput sets the initial raw input
func WithInput(raw string) TaskOption {
	return func(o *taskOptions) { o.input = raw }
}

// Task runs one kind of check. It owns its input, its result and the set of
// subjects it has already attempted; a subject in that set is never fetched
// again by Run. At most one call is in flight per task.
type Task[T any] struct {
	kind     Kind
	fetch    FetchFunc[T]
	exec     *resilience.Executor
	notifier Notifier
	logger   *slog.Logger

	// calls is held for the whole of a Run or Rerun
	calls sync.Mutex

	mu        sync.Mutex
	input     string
	subject   string
	busy      bool
	result    *T
	lastErr   error
	attempted map[string]struct{}
	autoRun   *time.Timer
}

// NewTask creates a task for kind
func NewTask[T any](kind Kind, fetch FetchFunc[T], opts ...TaskOption) *Task[T] {
	o := taskOptions{notifier: nopNotifier{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executor == nil {
		o.executor = resilience.NewExecutor(resilience.WithLogger(o.logger))
	}

	t := &Task[T]{
		kind:      kind,
		fetch:     fetch,
		exec:      o.executor,
		notifier:  o.notifier,
		logger:    o.logger.With(slog.String("component", "analysis_task"), slog.String("kind", string(kind))),
		attempted: make(map[string]struct{}),
	}
	t.SetInput(o.input)
	return t
}

// Kind returns the check this task runs
func (t *Task[T]) Kind() Kind {
	return t.kind
}

// SetInput replaces the raw input and recomputes the subject
func (t *Task[T]) SetInput(raw string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = raw
	t.subject = Normalize(raw)
}

// Subject returns the normalized subject
func (t *Task[T]) Subject() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subject
}

// Busy reports whether a call is in flight
func (t *Task[T]) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Data returns the last successful result, or nil
func (t *Task[T]) Data() *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Err returns the error of the last call, or nil
func (t *Task[T]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// IsRetrying reports whether the executor is between retry attempts
func (t *Task[T]) IsRetrying() bool {
	return t.exec.IsRetrying()
}

// Attempted reports whether subject is already in the de-duplication guard
func (t *Task[T]) Attempted(subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.attempted[subject]
	return ok
}

// Run fetches the current subject once per task lifetime. An empty subject
// fails validation without touching the guard. A subject that was already
// attempted returns a skipped Result. Run waits for a call already in
// flight on the task to finish first.
func (t *Task[T]) Run(ctx context.Context) Result[T] {
	t.calls.Lock()
	defer t.calls.Unlock()
	return t.run(ctx)
}

func (t *Task[T]) run(ctx context.Context) Result[T] {
	t.mu.Lock()
	subject := t.subject
	if subject == "" {
		t.mu.Unlock()
		return t.invalid(ctx)
	}
	if _, seen := t.attempted[subject]; seen {
		t.mu.Unlock()
		t.logger.DebugContext(ctx, "run_skipped", slog.String("subject", subject))
		return Result[T]{Skipped: true}
	}
	t.attempted[subject] = struct{}{}
	t.begin()
	t.mu.Unlock()

	return t.execute(ctx, subject)
}

// Rerun fetches the current subject again, whether or not it was attempted
// before. The guard entry is left in place. While another call is in
// flight on the task, Rerun is refused with ErrSubjectInFlight.
func (t *Task[T]) Rerun(ctx context.Context) Result[T] {
	if !t.calls.TryLock() {
		return Result[T]{Err: ErrSubjectInFlight}
	}
	defer t.calls.Unlock()

	t.mu.Lock()
	subject := t.subject
	if subject == "" {
		t.mu.Unlock()
		return t.invalid(ctx)
	}
	t.attempted[subject] = struct{}{}
	t.begin()
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "manual_rerun", slog.String("subject", subject))
	return t.execute(ctx, subject)
}

// Retry makes the call that is backing off try again now. The in-flight
// call records the outcome; Retry only reports it. It returns false when
// the executor holds no retryable failure.
func (t *Task[T]) Retry(ctx context.Context) (Result[T], bool) {
	value, ok, err := t.exec.Retry(ctx)
	if !ok {
		return Result[T]{}, false
	}
	if err != nil {
		return Result[T]{Err: err}, true
	}
	typed, isT := value.(T)
	if !isT {
		return Result[T]{Err: fmt.Errorf("unexpected %s retry result %T", t.kind, value)}, true
	}
	return Result[T]{Value: &typed}, true
}

// ScheduleAutoRun runs the task once after delay, unless the subject is
// empty, a call is in flight, the subject was already attempted or an
// auto-run is already pending. It reports whether a run was scheduled.
func (t *Task[T]) ScheduleAutoRun(ctx context.Context, delay time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subject == "" || t.busy || t.autoRun != nil {
		return false
	}
	if _, seen := t.attempted[t.subject]; seen {
		return false
	}

	t.autoRun = time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.autoRun = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if !t.calls.TryLock() {
			t.logger.DebugContext(ctx, "auto_run_skipped_busy")
			return
		}
		defer t.calls.Unlock()
		t.run(ctx)
	})
	return true
}

// CancelAutoRun stops a pending auto-run
func (t *Task[T]) CancelAutoRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.autoRun != nil {
		t.autoRun.Stop()
		t.autoRun = nil
	}
}

// View returns a snapshot of the task
func (t *Task[T]) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := View{
		Kind:       t.kind,
		Name:       t.kind.DisplayName(),
		Input:      t.input,
		Subject:    t.subject,
		Busy:       t.busy,
		Retrying:   t.exec.IsRetrying(),
		RetryState: t.exec.RetryState(),
		Attempted:  make([]string, 0, len(t.attempted)),
	}
	if t.result != nil {
		v.Result = *t.result
	}
	if t.lastErr != nil {
		appErr := apperrors.CreateAppError(t.lastErr, string(t.kind), t.subject)
		v.Error = appErr.Message
		v.ErrorType = string(appErr.Type)
	}
	for s := range t.attempted {
		v.Attempted = append(v.Attempted, s)
	}
	sort.Strings(v.Attempted)
	return v
}

// Runner adapts the task for the orchestrator
func (t *Task[T]) Runner() Runner {
	return taskRunner[T]{t}
}

// begin marks a call in flight. Callers hold t.mu.
func (t *Task[T]) begin() {
	t.busy = true
	t.result = nil
	t.lastErr = nil
}

func (t *Task[T]) execute(ctx context.Context, subject string) Result[T] {
	start := time.Now()
	t.logger.InfoContext(ctx, "run_started", slog.String("subject", subject))

	value, err := resilience.ExecuteWithErrorHandling(ctx, t.exec, func(ctx context.Context) (T, error) {
		return t.fetch(ctx, subject)
	}, string(t.kind), subject)

	// a call for a subject the input has since moved away from leaves no trace
	t.mu.Lock()
	t.busy = false
	if t.subject == subject {
		if err != nil {
			t.lastErr = err
		} else {
			t.result = &value
		}
	}
	t.mu.Unlock()

	if err != nil {
		appErr := apperrors.CreateAppError(err, string(t.kind), subject)
		t.logger.WarnContext(ctx, "run_failed",
			slog.String("subject", subject),
			slog.String("error_type", string(appErr.Type)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		t.notifier.Notify(ctx, Toast{
			Level:   ToastError,
			Kind:    t.kind,
			Title:   t.kind.DisplayName() + " failed",
			Message: apperrors.UserMessage(appErr),
		})
		return Result[T]{Err: err}
	}

	t.logger.InfoContext(ctx, "run_completed",
		slog.String("subject", subject),
		slog.Duration("duration", time.Since(start)))
	t.notifier.Notify(ctx, Toast{
		Level:   ToastSuccess,
		Kind:    t.kind,
		Title:   t.kind.DisplayName() + " complete",
		Message: fmt.Sprintf("%s check finished for %s", t.kind.DisplayName(), subject),
	})
	return Result[T]{Value: &value}
}

func (t *Task[T]) invalid(ctx context.Context) Result[T] {
	err := apperrors.NewValidationError(fmt.Sprintf("enter a website to run the %s check", t.kind.DisplayName()))
	err.Feature = string(t.kind)
	t.notifier.Notify(ctx, Toast{
		Level:   ToastError,
		Kind:    t.kind,
		Title:   "Invalid input",
		Message: err.Message,
	})
	return Result[T]{Err: err}
}

type taskRunner[T any] struct {
	t *Task[T]
}

func (r taskRunner[T]) Kind() Kind                              { return r.t.Kind() }
func (r taskRunner[T]) SetInput(raw string)                     { r.t.SetInput(raw) }
func (r taskRunner[T]) Execute(ctx context.Context) Result[any] { return r.t.Run(ctx).Any() }
func (r taskRunner[T]) Rerun(ctx context.Context) Result[any]   { return r.t.Rerun(ctx).Any() }
func (r taskRunner[T]) View() View                              { return r.t.View() }

func (r taskRunner[T]) ScheduleAutoRun(ctx context.Context, delay time.Duration) bool {
	return r.t.ScheduleAutoRun(ctx, delay)
}

func (r taskRunner[T]) CancelAutoRun() { r.t.CancelAutoRun() }

func (r taskRunner[T]) Retry(ctx context.Context) (Result[any], bool) {
	res, ok := r.t.Retry(ctx)
	return res.Any(), ok
}
