package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitepulse/internal/analysis"
	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/infrastructure"
)

// Orchestrator runs every analysis kind of a website, one at a time, in
// analysis.Sequence order
type Orchestrator struct {
	runners     map[analysis.Kind]analysis.Runner
	kindTimeout time.Duration
	broadcaster *StatusBroadcaster
	store       RunStore
	tracer      *AnalysisTracer
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.RWMutex
	state *OrchestratorState
	// generation changes on every reset; a run only writes while it owns
	// the current generation
	generation uint64
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithKindTimeout bounds each kind's run
func WithKindTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.kindTimeout = d }
}

// WithBroadcaster pushes a snapshot after every transition
func WithBroadcaster(sb *StatusBroadcaster) OrchestratorOption {
	return func(o *Orchestrator) { o.broadcaster = sb }
}

// WithRunStore keeps finished runs
func WithRunStore(store RunStore) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithAnalysisTracer records spans and metrics per run and kind
func WithAnalysisTracer(at *AnalysisTracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = at }
}

// WithLogger sets the orchestrator logger
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over runners, which must hold one
// runner per kind of analysis.Sequence
func NewOrchestrator(runners map[analysis.Kind]analysis.Runner, opts ...OrchestratorOption) (*Orchestrator, error) {
	for _, kind := range analysis.Sequence {
		if runners[kind] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingRunner, kind)
		}
	}

	o := &Orchestrator{
		runners: runners,
		logger:  slog.Default(),
		now:     time.Now,
		state:   NewOrchestratorState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer, _ = NewAnalysisTracer(nil)
	}
	o.logger = infrastructure.WithComponent(o.logger, "orchestrator")
	return o, nil
}

// StartAnalysis runs every kind against the normalized rawURL and returns
// once all of them have settled. An input that normalizes to nothing is
// ignored. ErrAnalysisInProgress is returned while another run is active.
func (o *Orchestrator) StartAnalysis(ctx context.Context, rawURL string) error {
	subject := analysis.Normalize(rawURL)
	if subject == "" {
		return nil
	}

	runID := uuid.NewString()
	start := o.now()

	o.mu.Lock()
	if o.state.IsRunning {
		o.mu.Unlock()
		return ErrAnalysisInProgress
	}
	o.generation++
	gen := o.generation
	o.state = NewOrchestratorState()
	o.state.RunID = runID
	o.state.URL = subject
	o.state.IsRunning = true
	o.state.StartTime = &start
	o.mu.Unlock()

	ctx = infrastructure.WithRunID(infrastructure.EnsureTraceID(ctx), runID)
	ctx, span := o.tracer.TraceRun(ctx, runID, subject)
	o.logRunStart(ctx, runID, subject)
	o.publish()

	for i, kind := range analysis.Sequence {
		o.runKind(ctx, gen, runID, i, kind, subject)
	}

	end := o.now()
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		o.tracer.RecordRunCompletion(ctx, span, Stats{Total: len(analysis.Sequence)}, end.Sub(start))
		return nil
	}
	o.state.IsRunning = false
	o.state.CurrentAnalysis = nil
	o.state.EndTime = &end
	final := o.state.Clone()
	o.mu.Unlock()

	stats := final.Stats()
	o.tracer.RecordRunCompletion(ctx, span, stats, end.Sub(start))
	o.logRunComplete(ctx, runID, stats, end.Sub(start))
	o.publish()

	if o.store != nil {
		err := o.store.Save(RunRecord{
			ID:        runID,
			URL:       subject,
			StartTime: start,
			EndTime:   end,
			Stats:     stats,
			State:     final,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "run_store_failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// runKind moves one kind through running to its terminal status
func (o *Orchestrator) runKind(ctx context.Context, gen uint64, runID string, index int, kind analysis.Kind, subject string) {
	runner := o.runners[kind]
	start := o.now()

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return
	}
	k := kind
	o.state.CurrentIndex = index
	o.state.CurrentAnalysis = &k
	if err := o.state.Analyses[kind].begin(start); err != nil {
		o.mu.Unlock()
		o.logTransitionError(ctx, kind, err)
		return
	}
	o.mu.Unlock()

	o.logKindStart(ctx, runID, kind, index)
	o.publish()

	kctx, span := o.tracer.TraceKind(ctx, kind, index)
	if o.kindTimeout > 0 {
		var cancel context.CancelFunc
		kctx, cancel = context.WithTimeout(kctx, o.kindTimeout)
		defer cancel()
	}

	runner.SetInput(subject)
	res := runner.Execute(kctx)
	status, data, message := settle(res, runner)

	end := o.now()
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		span.End()
		return
	}
	var err error
	if status == StatusSuccess {
		err = o.state.Analyses[kind].succeed(end, data)
	} else {
		err = o.state.Analyses[kind].fail(end, message)
	}
	o.mu.Unlock()

	if err != nil {
		o.logTransitionError(ctx, kind, err)
	}
	o.tracer.RecordKindCompletion(kctx, span, kind, status, end.Sub(start), message)
	o.logKindSettled(ctx, runID, kind, status, end.Sub(start), message)
	o.publish()
}

// settle maps a runner Result to a terminal status. A skipped run means the
// task already attempted this subject, so its held outcome is reused.
func settle(res analysis.Result[any], runner analysis.Runner) (Status, any, string) {
	switch {
	case res.Err != nil:
		return StatusError, nil, errorMessage(res.Err)
	case res.Value != nil:
		return StatusSuccess, *res.Value, ""
	case res.Skipped:
		view := runner.View()
		if view.Result != nil && view.Error == "" {
			return StatusSuccess, view.Result, ""
		}
		if view.Error != "" {
			return StatusError, nil, view.Error
		}
		return StatusError, nil, "analysis already attempted for this subject; rerun it to check again"
	default:
		return StatusError, nil, "analysis returned no result"
	}
}

func errorMessage(err error) string {
	appErr := apperrors.CreateAppError(err, "", "")
	if appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// ClearResults resets to the idle state with every kind pending. A run in
// progress keeps executing but its results are discarded.
func (o *Orchestrator) ClearResults() {
	o.mu.Lock()
	o.generation++
	o.state = NewOrchestratorState()
	o.mu.Unlock()

	o.logger.Info("analysis_cleared")
	o.publish()
}

// State returns a deep copy of the current state
func (o *Orchestrator) State() *OrchestratorState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// IsRunning reports whether a run is active
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.IsRunning
}

// GetStats summarizes the current state
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Stats()
}

// Progress returns the percentage of kinds that have settled
func (o *Orchestrator) Progress() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return progressOf(o.state)
}

// IsTabEnabled reports whether kind has settled
func (o *Orchestrator) IsTabEnabled(kind analysis.Kind) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.state.Analyses[kind]
	return ok && st.State.Terminal()
}

// GetTabBadge returns the status symbol for kind
func (o *Orchestrator) GetTabBadge(kind analysis.Kind) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if st, ok := o.state.Analyses[kind]; ok {
		return st.State.Badge()
	}
	return BadgePending
}

// Runner returns the task runner for kind
func (o *Orchestrator) Runner(kind analysis.Kind) (analysis.Runner, bool) {
	r, ok := o.runners[kind]
	return r, ok
}

// Run returns one finished run by ID
func (o *Orchestrator) Run(id string) (RunRecord, error) {
	if o.store == nil {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return o.store.Get(id)
}

// Runs lists finished runs, newest first
func (o *Orchestrator) Runs(limit int) []RunRecord {
	if o.store == nil {
		return nil
	}
	return o.store.List(limit)
}

func (o *Orchestrator) publish() {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.PublishState(o.State())
}
