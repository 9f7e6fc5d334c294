package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sitepulse/internal/analysis"
	"sitepulse/internal/config"
	"sitepulse/internal/operations"
)

// AnalysisService exposes the orchestrator and its task runners to the
// transport layer. Runs execute in the background; callers observe them
// through State and the WebSocket snapshots.
type AnalysisService struct {
	orchestrator *operations.Orchestrator
	broadcaster  *operations.StatusBroadcaster
	logger       *slog.Logger
	autoRunDelay time.Duration

	mu       sync.Mutex
	starting bool
	wg       sync.WaitGroup
}

// StartResponse acknowledges an accepted run
type StartResponse struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// TabStatus is the result tab of one kind
type TabStatus struct {
	Kind    analysis.Kind     `json:"kind"`
	Name    string            `json:"name"`
	Status  operations.Status `json:"status"`
	Enabled bool              `json:"enabled"`
	Badge   string            `json:"badge"`
}

// AutoRunResponse reports whether a tab's auto-run was scheduled
type AutoRunResponse struct {
	Scheduled bool          `json:"scheduled"`
	View      analysis.View `json:"view"`
}

// AnalysisOption configures an AnalysisService
type AnalysisOption func(*AnalysisService)

// WithAutoRunDelay sets how long AutoRun waits before calling the backend
func WithAutoRunDelay(d time.Duration) AnalysisOption {
	return func(s *AnalysisService) {
		if d >= 0 {
			s.autoRunDelay = d
		}
	}
}

// NewAnalysisService creates the service. broadcaster may be nil.
func NewAnalysisService(orchestrator *operations.Orchestrator, broadcaster *operations.StatusBroadcaster, logger *slog.Logger, opts ...AnalysisOption) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AnalysisService{
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		logger:       logger.With(slog.String("service", "analysis")),
		autoRunDelay: config.DefaultAutoRunDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAnalysis validates rawURL and starts a run in the background. The
// run outlives ctx's cancellation but keeps its values for tracing.
func (s *AnalysisService) StartAnalysis(ctx context.Context, rawURL string) (StartResponse, error) {
	subject := analysis.Normalize(rawURL)
	if subject == "" {
		return StartResponse{}, fmt.Errorf("%w: %q is not a website address", ErrInvalidInput, rawURL)
	}

	s.mu.Lock()
	if s.starting || s.orchestrator.IsRunning() {
		s.mu.Unlock()
		return StartResponse{}, operations.ErrAnalysisInProgress
	}
	s.starting = true
	s.wg.Add(1)
	s.cancelAutoRuns()
	s.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.starting = false
			s.mu.Unlock()
		}()

		if err := s.orchestrator.StartAnalysis(runCtx, rawURL); err != nil {
			s.logger.ErrorContext(runCtx, "analysis_start_failed",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
		}
	}()

	s.logger.InfoContext(ctx, "analysis_accepted", slog.String("subject", subject))
	return StartResponse{URL: subject, Status: "started"}, nil
}

// autoRunCanceler is implemented by runners that can drop a pending auto-run
type autoRunCanceler interface {
	CancelAutoRun()
}

// cancelAutoRuns drops auto-runs still waiting to fire, so that during a run
// the orchestrator alone points tasks at a subject
func (s *AnalysisService) cancelAutoRuns() {
	for _, kind := range analysis.Sequence {
		runner, ok := s.orchestrator.Runner(kind)
		if !ok {
			continue
		}
		if c, ok := runner.(autoRunCanceler); ok {
			c.CancelAutoRun()
		}
	}
}

// runActive reports whether a run was accepted and has not finished.
// Callers hold s.mu.
func (s *AnalysisService) runActive() bool {
	return s.starting || s.orchestrator.IsRunning()
}

// Wait blocks until background runs started by this service return
func (s *AnalysisService) Wait() {
	s.wg.Wait()
}

// ClearResults resets the orchestrator
func (s *AnalysisService) ClearResults(ctx context.Context) {
	s.orchestrator.ClearResults()
	s.logger.InfoContext(ctx, "analysis_results_cleared")
}

// State returns the current orchestrator state
func (s *AnalysisService) State(ctx context.Context) *operations.OrchestratorState {
	return s.orchestrator.State()
}

// Stats returns the summary of the current state
func (s *AnalysisService) Stats(ctx context.Context) operations.Stats {
	return s.orchestrator.GetStats()
}

// Progress returns the percentage of settled kinds
func (s *AnalysisService) Progress(ctx context.Context) int {
	return s.orchestrator.Progress()
}

// Tabs returns the tab of every kind in sequence order
func (s *AnalysisService) Tabs(ctx context.Context) []TabStatus {
	state := s.orchestrator.State()
	tabs := make([]TabStatus, 0, len(analysis.Sequence))
	for _, st := range state.Ordered() {
		tabs = append(tabs, TabStatus{
			Kind:    st.Kind,
			Name:    st.Kind.DisplayName(),
			Status:  st.State,
			Enabled: st.State.Terminal(),
			Badge:   st.State.Badge(),
		})
	}
	return tabs
}

// Tab returns the tab of kind
func (s *AnalysisService) Tab(ctx context.Context, kind analysis.Kind) (TabStatus, error) {
	if !kind.Valid() {
		return TabStatus{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	state := s.orchestrator.State()
	st := state.Analyses[kind]
	return TabStatus{
		Kind:    kind,
		Name:    kind.DisplayName(),
		Status:  st.State,
		Enabled: s.orchestrator.IsTabEnabled(kind),
		Badge:   s.orchestrator.GetTabBadge(kind),
	}, nil
}

// TaskView returns the per-kind task view
func (s *AnalysisService) TaskView(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	runner, err := s.runner(kind)
	if err != nil {
		return analysis.View{}, err
	}
	return runner.View(), nil
}

// Rerun re-executes kind against its current subject, ignoring the
// already-attempted guard. It does not change the orchestrator state and is
// refused while a run is active.
func (s *AnalysisService) Rerun(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	runner, err := s.runner(kind)
	if err != nil {
		return analysis.View{}, err
	}

	s.mu.Lock()
	active := s.runActive()
	s.mu.Unlock()
	if active {
		return runner.View(), operations.ErrAnalysisInProgress
	}

	res := runner.Rerun(ctx)
	if errors.Is(res.Err, analysis.ErrSubjectInFlight) {
		return runner.View(), fmt.Errorf("%w: %s", ErrTaskBusy, kind)
	}

	view := runner.View()
	s.logger.InfoContext(ctx, "analysis_rerun",
		slog.String("kind", string(kind)),
		slog.String("subject", view.Subject),
		slog.Bool("ok", res.OK()))
	s.publishTask(view)
	return view, nil
}

// Retry makes kind's backing-off call attempt again now. It issues no call
// of its own, so it is allowed during a run.
func (s *AnalysisService) Retry(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	runner, err := s.runner(kind)
	if err != nil {
		return analysis.View{}, err
	}

	res, ok := runner.Retry(ctx)
	if !ok {
		return runner.View(), fmt.Errorf("%w: %s", ErrNothingToRetry, kind)
	}

	view := runner.View()
	s.logger.InfoContext(ctx, "analysis_retried",
		slog.String("kind", string(kind)),
		slog.Bool("ok", res.OK()))
	s.publishTask(view)
	return view, nil
}

// AutoRun points kind's task at rawURL and schedules a single background
// run after the configured delay. Nothing is scheduled when the subject was
// already attempted or a call is in flight. While a run is active the
// orchestrator owns every task's input and AutoRun is refused.
func (s *AnalysisService) AutoRun(ctx context.Context, kind analysis.Kind, rawURL string) (AutoRunResponse, error) {
	runner, err := s.runner(kind)
	if err != nil {
		return AutoRunResponse{}, err
	}
	if analysis.Normalize(rawURL) == "" {
		return AutoRunResponse{}, fmt.Errorf("%w: %q is not a website address", ErrInvalidInput, rawURL)
	}

	s.mu.Lock()
	if s.runActive() {
		s.mu.Unlock()
		return AutoRunResponse{}, operations.ErrAnalysisInProgress
	}
	runner.SetInput(rawURL)
	scheduled := runner.ScheduleAutoRun(context.WithoutCancel(ctx), s.autoRunDelay)
	s.mu.Unlock()

	view := runner.View()
	s.logger.InfoContext(ctx, "analysis_auto_run",
		slog.String("kind", string(kind)),
		slog.String("subject", view.Subject),
		slog.Bool("scheduled", scheduled),
		slog.Duration("delay", s.autoRunDelay))
	s.publishTask(view)
	return AutoRunResponse{Scheduled: scheduled, View: view}, nil
}

// Runs lists finished runs, newest first
func (s *AnalysisService) Runs(ctx context.Context, limit int) []operations.RunRecord {
	return s.orchestrator.Runs(limit)
}

// Run returns a finished run by its ID
func (s *AnalysisService) Run(ctx context.Context, id string) (operations.RunRecord, error) {
	return s.orchestrator.Run(id)
}

func (s *AnalysisService) runner(kind analysis.Kind) (analysis.Runner, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	runner, ok := s.orchestrator.Runner(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return runner, nil
}

func (s *AnalysisService) publishTask(view analysis.View) {
	if s.broadcaster != nil {
		s.broadcaster.PublishTask(view)
	}
}
