package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analysis"
	"sitepulse/internal/config"
	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/operations"
	opstestutil "sitepulse/internal/operations/testutil"
	"sitepulse/internal/resilience"
	"sitepulse/internal/shared/testutil"
)

type stack struct {
	backend *testutil.FakeBackend
	suite   *analysis.Suite
	hub     *opstestutil.RecordingHub
	service *AnalysisService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	logger, _ := testutil.NewTestLogger(t)
	backend := testutil.NewFakeBackend(t)
	hub := &opstestutil.RecordingHub{}
	broadcaster := operations.NewStatusBroadcaster(hub, logger)
	t.Cleanup(broadcaster.Stop)

	client := analysis.NewClient(config.AnalysisConfig{
		BaseURL:        backend.URL(),
		RequestTimeout: 2 * time.Second,
	}, config.BreakerConfig{FailureThreshold: 5, OpenTimeout: time.Minute, SuccessThreshold: 1})

	suite := analysis.NewSuite(analysis.SuiteConfig{
		Client:   client,
		Notifier: broadcaster,
		Logger:   logger,
		ExecutorOptions: []resilience.ExecutorOption{resilience.WithPolicy(apperrors.RetryPolicy{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		})},
	})

	orchestrator, err := operations.NewOrchestrator(suite.Runners(),
		operations.WithBroadcaster(broadcaster),
		operations.WithRunStore(operations.NewMemoryRunStore(10)),
		operations.WithLogger(logger))
	require.NoError(t, err)

	return &stack{
		backend: backend,
		suite:   suite,
		hub:     hub,
		service: NewAnalysisService(orchestrator, broadcaster, logger, WithAutoRunDelay(time.Millisecond)),
	}
}

func TestAnalysisService_StartAnalysis(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	resp, err := s.service.StartAnalysis(ctx, "HTTPS://www.Example.com/pricing")
	require.NoError(t, err)
	assert.Equal(t, StartResponse{URL: "example.com", Status: "started"}, resp)

	s.service.Wait()

	state := s.service.State(ctx)
	assert.False(t, state.IsRunning)
	assert.Equal(t, "example.com", state.URL)
	stats := s.service.Stats(ctx)
	assert.Equal(t, 8, stats.Success)
	assert.Equal(t, 100, s.service.Progress(ctx))

	runs := s.service.Runs(ctx, 0)
	require.Len(t, runs, 1)
	assert.Equal(t, "example.com", runs[0].URL)

	assert.Contains(t, s.hub.Statuses(operations.EventAnalysisSnapshot), "completed")
	opstestutil.AssertBroadcastCount(t, s.hub, operations.EventAnalysisToast, len(analysis.Sequence))
}

func TestAnalysisService_StartAnalysis_InvalidURL(t *testing.T) {
	s := newStack(t)

	_, err := s.service.StartAnalysis(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, s.backend.CallLog())
}

func TestAnalysisService_StartAnalysis_Conflict(t *testing.T) {
	s := newStack(t)
	s.backend.Delay(testutil.PathPerformance, 200*time.Millisecond)
	ctx := context.Background()

	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)

	_, err = s.service.StartAnalysis(ctx, "example.org")
	assert.ErrorIs(t, err, operations.ErrAnalysisInProgress)

	s.service.Wait()
	assert.Equal(t, "example.com", s.service.State(ctx).URL)
}

func TestAnalysisService_RunOutlivesRequestContext(t *testing.T) {
	s := newStack(t)
	s.backend.Delay(testutil.PathMonitor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)
	cancel()

	s.service.Wait()
	assert.Equal(t, 8, s.service.Stats(context.Background()).Success)
}

func TestAnalysisService_Tabs(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for _, tab := range s.service.Tabs(ctx) {
		assert.False(t, tab.Enabled)
		assert.Equal(t, operations.BadgePending, tab.Badge)
	}

	s.backend.FailPath(testutil.PathSitemap, 404, "sitemap not found")
	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)
	s.service.Wait()

	tabs := s.service.Tabs(ctx)
	require.Len(t, tabs, len(analysis.Sequence))
	for i, tab := range tabs {
		assert.Equal(t, analysis.Sequence[i], tab.Kind)
		assert.True(t, tab.Enabled)
	}

	tab, err := s.service.Tab(ctx, analysis.KindSitemap)
	require.NoError(t, err)
	assert.Equal(t, operations.StatusError, tab.Status)
	assert.Equal(t, operations.BadgeError, tab.Badge)
	assert.Equal(t, "Sitemap", tab.Name)

	_, err = s.service.Tab(ctx, analysis.Kind("whois"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAnalysisService_Rerun(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)
	s.service.Wait()
	s.hub.Reset()

	view, err := s.service.Rerun(ctx, analysis.KindDNS)
	require.NoError(t, err)
	assert.Equal(t, "example.com", view.Subject)
	assert.NotNil(t, view.Result)
	assert.Equal(t, 2, s.backend.Calls(testutil.PathDNS))
	opstestutil.AssertBroadcastCount(t, s.hub, operations.EventTaskUpdate, 1)

	assert.Equal(t, operations.StatusSuccess, s.service.State(ctx).Analyses[analysis.KindDNS].State, "rerun leaves the run state alone")
}

func TestAnalysisService_RerunWhileInFlight(t *testing.T) {
	s := newStack(t)
	s.backend.Delay(testutil.PathPerformance, 300*time.Millisecond)
	ctx := context.Background()

	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)
	require.Eventually(t, s.suite.Performance.Busy, time.Second, 5*time.Millisecond)

	_, err = s.service.Rerun(ctx, analysis.KindPerformance)
	assert.ErrorIs(t, err, operations.ErrAnalysisInProgress)
	_, err = s.service.Rerun(ctx, analysis.KindTypography)
	assert.ErrorIs(t, err, operations.ErrAnalysisInProgress, "refused for kinds the run has not reached")

	s.service.Wait()
	assert.Equal(t, 1, s.backend.Calls(testutil.PathPerformance))
	assert.Equal(t, 1, s.backend.Calls(testutil.PathTypography))
}

func TestAnalysisService_RerunWhileAutoRunInFlight(t *testing.T) {
	s := newStack(t)
	s.backend.Delay(testutil.PathSitemap, 300*time.Millisecond)
	ctx := context.Background()

	_, err := s.service.AutoRun(ctx, analysis.KindSitemap, "example.com")
	require.NoError(t, err)
	require.Eventually(t, s.suite.Sitemap.Busy, time.Second, 5*time.Millisecond)

	_, err = s.service.Rerun(ctx, analysis.KindSitemap)
	assert.ErrorIs(t, err, ErrTaskBusy)

	require.Eventually(t, func() bool { return !s.suite.Sitemap.Busy() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.backend.Calls(testutil.PathSitemap))
}

func TestAnalysisService_AutoRunDuringRun(t *testing.T) {
	s := newStack(t)
	s.backend.Delay(testutil.PathPerformance, 200*time.Millisecond)
	ctx := context.Background()

	_, err := s.service.StartAnalysis(ctx, "site-a.com")
	require.NoError(t, err)
	require.Eventually(t, s.suite.Performance.Busy, time.Second, 5*time.Millisecond)

	_, err = s.service.AutoRun(ctx, analysis.KindTypography, "site-b.com")
	assert.ErrorIs(t, err, operations.ErrAnalysisInProgress)

	s.service.Wait()
	assert.Equal(t, "site-a.com", s.suite.Typography.View().Subject, "run input left untouched")
	assert.Equal(t, 1, s.backend.Calls(testutil.PathTypography))

	stats := s.service.Stats(ctx)
	assert.Equal(t, 8, stats.Success)
	assert.Equal(t, 8, stats.Completed)
}

func TestAnalysisService_AutoRun(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	resp, err := s.service.AutoRun(ctx, analysis.KindSitemap, "https://Example.com/")
	require.NoError(t, err)
	assert.True(t, resp.Scheduled)
	assert.Equal(t, "example.com", resp.View.Subject)

	require.Eventually(t, func() bool {
		return s.backend.Calls(testutil.PathSitemap) == 1 && !s.suite.Sitemap.Busy()
	}, time.Second, 5*time.Millisecond)
	assert.NotNil(t, s.suite.Sitemap.Data())

	again, err := s.service.AutoRun(ctx, analysis.KindSitemap, "example.com")
	require.NoError(t, err)
	assert.False(t, again.Scheduled, "subject already attempted")

	_, err = s.service.AutoRun(ctx, analysis.KindSitemap, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.service.AutoRun(ctx, analysis.Kind("whois"), "example.com")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAnalysisService_RetryWithoutPendingFailure(t *testing.T) {
	s := newStack(t)

	_, err := s.service.Retry(context.Background(), analysis.KindSSL)
	assert.ErrorIs(t, err, ErrNothingToRetry)

	_, err = s.service.Retry(context.Background(), analysis.Kind("nope"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAnalysisService_TaskView(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	view, err := s.service.TaskView(ctx, analysis.KindTypography)
	require.NoError(t, err)
	assert.Equal(t, "Typography", view.Name)
	assert.Empty(t, view.Subject)

	_, err = s.service.TaskView(ctx, analysis.Kind(""))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAnalysisService_ClearResults(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.service.StartAnalysis(ctx, "example.com")
	require.NoError(t, err)
	s.service.Wait()

	s.service.ClearResults(ctx)
	stats := s.service.Stats(ctx)
	assert.Equal(t, operations.Stats{Total: 8}, stats)
	assert.Len(t, s.service.Runs(ctx, 0), 1, "history survives a clear")
}
