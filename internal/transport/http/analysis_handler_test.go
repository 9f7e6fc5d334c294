package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analysis"
	"sitepulse/internal/config"
	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/middleware"
	"sitepulse/internal/operations"
	"sitepulse/internal/resilience"
	"sitepulse/internal/services"
	"sitepulse/internal/shared/testutil"
)

// MockAnalysisService is a mock implementation of the analysis service
type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) StartAnalysis(ctx context.Context, rawURL string) (services.StartResponse, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(services.StartResponse), args.Error(1)
}

func (m *MockAnalysisService) ClearResults(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockAnalysisService) State(ctx context.Context) *operations.OrchestratorState {
	return m.Called(ctx).Get(0).(*operations.OrchestratorState)
}

func (m *MockAnalysisService) Stats(ctx context.Context) operations.Stats {
	return m.Called(ctx).Get(0).(operations.Stats)
}

func (m *MockAnalysisService) Progress(ctx context.Context) int {
	return m.Called(ctx).Int(0)
}

func (m *MockAnalysisService) Tabs(ctx context.Context) []services.TabStatus {
	return m.Called(ctx).Get(0).([]services.TabStatus)
}

func (m *MockAnalysisService) Tab(ctx context.Context, kind analysis.Kind) (services.TabStatus, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(services.TabStatus), args.Error(1)
}

func (m *MockAnalysisService) TaskView(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(analysis.View), args.Error(1)
}

func (m *MockAnalysisService) Rerun(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(analysis.View), args.Error(1)
}

func (m *MockAnalysisService) AutoRun(ctx context.Context, kind analysis.Kind, rawURL string) (services.AutoRunResponse, error) {
	args := m.Called(ctx, kind, rawURL)
	return args.Get(0).(services.AutoRunResponse), args.Error(1)
}

func (m *MockAnalysisService) Retry(ctx context.Context, kind analysis.Kind) (analysis.View, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(analysis.View), args.Error(1)
}

func (m *MockAnalysisService) Runs(ctx context.Context, limit int) []operations.RunRecord {
	return m.Called(ctx, limit).Get(0).([]operations.RunRecord)
}

func (m *MockAnalysisService) Run(ctx context.Context, id string) (operations.RunRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(operations.RunRecord), args.Error(1)
}

// Test helper to create a router with the handler mounted like the server does
func setupAnalysisRouter(t *testing.T, service AnalysisServiceInterface) chi.Router {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/analysis", NewAnalysisHandler(service, logger).Routes())
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestAnalysisHandler_StartAnalysis(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		setup       func(*MockAnalysisService)
		wantStatus  int
		wantType    string
		contentType string
	}{
		{
			name: "accepted",
			body: `{"url":"https://www.example.com/"}`,
			setup: func(m *MockAnalysisService) {
				m.On("StartAnalysis", mock.Anything, "https://www.example.com/").
					Return(services.StartResponse{URL: "example.com", Status: "started"}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing url",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name:       "not a website",
			body:       `{"url":"https:///"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name:       "malformed json",
			body:       `{"url":`,
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name: "already running",
			body: `{"url":"example.org"}`,
			setup: func(m *MockAnalysisService) {
				m.On("StartAnalysis", mock.Anything, "example.org").
					Return(services.StartResponse{}, operations.ErrAnalysisInProgress)
			},
			wantStatus: http.StatusConflict,
			wantType:   apperrors.TypeAnalysisRunning,
		},
		{
			name:        "wrong content type",
			body:        `url=example.com`,
			contentType: "application/x-www-form-urlencoded",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockAnalysisService{}
			if tt.setup != nil {
				tt.setup(service)
			}
			router := setupAnalysisRouter(t, service)

			req := httptest.NewRequest(http.MethodPost, "/api/analysis/start", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeProblem(t, rec)["type"])
			}
			service.AssertExpectations(t)
		})
	}
}

func TestAnalysisHandler_StartAnalysis_Response(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("StartAnalysis", mock.Anything, "example.com").
		Return(services.StartResponse{URL: "example.com", Status: "started"}, nil)
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodPost, "/api/analysis/start", `{"url":"  example.com  "}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp services.StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "example.com", resp.URL)
	assert.Equal(t, "started", resp.Status)
}

func TestAnalysisHandler_GetState(t *testing.T) {
	service := &MockAnalysisService{}
	state := operations.NewOrchestratorState()
	state.URL = "example.com"
	state.IsRunning = true
	service.On("State", mock.Anything).Return(state)
	service.On("Progress", mock.Anything).Return(25)
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "example.com", body["url"])
	assert.Equal(t, true, body["is_running"])
	assert.Equal(t, float64(25), body["progress"])
	assert.Len(t, body["analyses"], len(analysis.Sequence))
}

func TestAnalysisHandler_GetStats(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("Stats", mock.Anything).Return(operations.Stats{Total: 8, Completed: 8, Success: 5, Failed: 3})
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(8), body["total"])
	assert.Equal(t, float64(5), body["success"])
	assert.Equal(t, float64(3), body["failed"])
}

func TestAnalysisHandler_Tabs(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("Tabs", mock.Anything).Return([]services.TabStatus{
		{Kind: analysis.KindPerformance, Name: "Performance", Status: operations.StatusSuccess, Enabled: true, Badge: operations.BadgeSuccess},
	})
	service.On("Tab", mock.Anything, analysis.KindSSL).Return(services.TabStatus{
		Kind: analysis.KindSSL, Name: "SSL Certificate", Status: operations.StatusError, Enabled: true, Badge: operations.BadgeError,
	}, nil)
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/tabs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tabs []services.TabStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tabs))
	require.Len(t, tabs, 1)
	assert.True(t, tabs[0].Enabled)

	rec = doRequest(router, http.MethodGet, "/api/analysis/tabs/SSL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tab services.TabStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tab))
	assert.Equal(t, operations.BadgeError, tab.Badge)

	rec = doRequest(router, http.MethodGet, "/api/analysis/tabs/whois", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.TypeUnknownKind, decodeProblem(t, rec)["type"])
	service.AssertNotCalled(t, "Tab", mock.Anything, analysis.Kind("whois"))
}

func TestAnalysisHandler_ClearResults(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("ClearResults", mock.Anything).Return()
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodDelete, "/api/analysis", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	service.AssertExpectations(t)
}

func TestAnalysisHandler_TaskEndpoints(t *testing.T) {
	view := analysis.View{Kind: analysis.KindDNS, Name: "DNS Records", Subject: "example.com", Result: map[string]interface{}{"a": []string{"93.184.216.34"}}}

	tests := []struct {
		name       string
		method     string
		path       string
		mockMethod string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "view", method: http.MethodGet, path: "/api/analysis/dns", mockMethod: "TaskView", wantStatus: http.StatusOK},
		{name: "rerun", method: http.MethodPost, path: "/api/analysis/dns/rerun", mockMethod: "Rerun", wantStatus: http.StatusOK},
		{name: "rerun busy", method: http.MethodPost, path: "/api/analysis/dns/rerun", mockMethod: "Rerun", err: services.ErrTaskBusy, wantStatus: http.StatusConflict, wantType: apperrors.TypeConflict},
		{name: "rerun during run", method: http.MethodPost, path: "/api/analysis/dns/rerun", mockMethod: "Rerun", err: operations.ErrAnalysisInProgress, wantStatus: http.StatusConflict, wantType: apperrors.TypeAnalysisRunning},
		{name: "retry", method: http.MethodPost, path: "/api/analysis/dns/retry", mockMethod: "Retry", wantStatus: http.StatusOK},
		{name: "nothing to retry", method: http.MethodPost, path: "/api/analysis/dns/retry", mockMethod: "Retry", err: services.ErrNothingToRetry, wantStatus: http.StatusConflict, wantType: apperrors.TypeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockAnalysisService{}
			service.On(tt.mockMethod, mock.Anything, analysis.KindDNS).Return(view, tt.err)
			router := setupAnalysisRouter(t, service)

			rec := doRequest(router, tt.method, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				problem := decodeProblem(t, rec)
				assert.Equal(t, tt.wantType, problem["type"])
				assert.Contains(t, problem, "request_id")
				return
			}

			var got analysis.View
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "example.com", got.Subject)
			service.AssertExpectations(t)
		})
	}
}

func TestAnalysisHandler_AutoRun(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(m *MockAnalysisService)
		wantStatus int
		scheduled  bool
	}{
		{
			name: "scheduled",
			body: `{"url":" https://example.com "}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("AutoRun", mock.Anything, analysis.KindLinks, "https://example.com").
					Return(services.AutoRunResponse{Scheduled: true, View: analysis.View{Kind: analysis.KindLinks, Subject: "example.com"}}, nil)
			},
			wantStatus: http.StatusAccepted,
			scheduled:  true,
		},
		{
			name: "already attempted",
			body: `{"url":"example.com"}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("AutoRun", mock.Anything, analysis.KindLinks, "example.com").
					Return(services.AutoRunResponse{View: analysis.View{Kind: analysis.KindLinks, Subject: "example.com"}}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing url",
			body:       `{}`,
			setupMock:  func(m *MockAnalysisService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockAnalysisService{}
			tt.setupMock(service)
			router := setupAnalysisRouter(t, service)

			rec := doRequest(router, http.MethodPost, "/api/analysis/links/autorun", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				var got services.AutoRunResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.scheduled, got.Scheduled)
				assert.Equal(t, "example.com", got.View.Subject)
			}
			service.AssertExpectations(t)
		})
	}
}

func TestAnalysisHandler_UnknownKind(t *testing.T) {
	service := &MockAnalysisService{}
	router := setupAnalysisRouter(t, service)

	for _, path := range []string{"/api/analysis/whois", "/api/analysis/whois/rerun", "/api/analysis/whois/retry"} {
		method := http.MethodPost
		if !strings.HasSuffix(path, "rerun") && !strings.HasSuffix(path, "retry") {
			method = http.MethodGet
		}
		rec := doRequest(router, method, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	service.AssertExpectations(t)
}

func TestAnalysisHandler_ListRuns(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("Runs", mock.Anything, 10).Return([]operations.RunRecord{{ID: "run-1", URL: "example.com"}})
	service.On("Runs", mock.Anything, 2).Return([]operations.RunRecord{})
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs  []operations.RunRecord `json:"runs"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "run-1", body.Runs[0].ID)

	rec = doRequest(router, http.MethodGet, "/api/analysis/runs?limit=2", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/analysis/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(router, http.MethodGet, "/api/analysis/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertExpectations(t)
}

func TestAnalysisHandler_GetRun(t *testing.T) {
	service := &MockAnalysisService{}
	service.On("Run", mock.Anything, "run-1").Return(operations.RunRecord{ID: "run-1", URL: "example.com"}, nil)
	service.On("Run", mock.Anything, "gone").
		Return(operations.RunRecord{}, fmt.Errorf("%w: gone", operations.ErrRunNotFound))
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record operations.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "example.com", record.URL)

	rec = doRequest(router, http.MethodGet, "/api/analysis/runs/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, apperrors.TypeNotFound, problem["type"])
	service.AssertExpectations(t)
}

func TestAnalysisHandler_Export(t *testing.T) {
	state := operations.NewOrchestratorState()
	state.URL = "example.com"

	service := &MockAnalysisService{}
	service.On("State", mock.Anything).Return(state)
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodGet, "/api/analysis/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="example_com-`)

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(rec.Body.Bytes(), []byte("\xef\xbb\xbf")))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+len(analysis.Sequence))

	rec = doRequest(router, http.MethodGet, "/api/analysis/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, rec.Body.Len())

	rec = doRequest(router, http.MethodGet, "/api/analysis/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisHandler_EndToEnd(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	backend := testutil.NewFakeBackend(t)
	backend.FailPath(testutil.PathSSL, http.StatusBadRequest, "certificate not found")

	client := analysis.NewClient(config.AnalysisConfig{
		BaseURL:        backend.URL(),
		RequestTimeout: 2 * time.Second,
	}, config.BreakerConfig{FailureThreshold: 5, OpenTimeout: time.Minute, SuccessThreshold: 1})
	suite := analysis.NewSuite(analysis.SuiteConfig{
		Client: client,
		Logger: logger,
		ExecutorOptions: []resilience.ExecutorOption{resilience.WithPolicy(apperrors.RetryPolicy{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		})},
	})
	orchestrator, err := operations.NewOrchestrator(suite.Runners(),
		operations.WithRunStore(operations.NewMemoryRunStore(5)),
		operations.WithLogger(logger))
	require.NoError(t, err)
	service := services.NewAnalysisService(orchestrator, nil, logger)
	router := setupAnalysisRouter(t, service)

	rec := doRequest(router, http.MethodPost, "/api/analysis/start", `{"url":"https://Example.com/"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	service.Wait()

	rec = doRequest(router, http.MethodGet, "/api/analysis/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(7), stats["success"])
	assert.Equal(t, float64(1), stats["failed"])

	rec = doRequest(router, http.MethodGet, "/api/analysis/tabs/ssl", "")
	var tab services.TabStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tab))
	assert.Equal(t, operations.StatusError, tab.Status)

	rec = doRequest(router, http.MethodGet, "/api/analysis/ssl", "")
	var view analysis.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "certificate not found", view.Error)

	rec = doRequest(router, http.MethodGet, "/api/analysis/runs?limit=1", "")
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doRequest(router, http.MethodDelete, "/api/analysis", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(router, http.MethodGet, "/api/analysis/stats", "")
	stats = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(len(analysis.Sequence)), stats["total"])
	assert.Equal(t, float64(0), stats["completed"])
	assert.Nil(t, stats["total_duration"])
}
