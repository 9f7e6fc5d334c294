package errors

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitepulse/internal/shared/testutil"
)

func TestErrorMiddleware_LogsRequests(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	body := `{"url":"example.com","token":"secret-value"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/start?x=1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, req)

	warns := handler.GetRecordsByLevel(slog.LevelWarn)
	if assert.Len(t, warns, 1) {
		assert.Equal(t, "http_request", warns[0].Message)
		assert.Equal(t, "x=1", warns[0].Attrs["query"])
		logged, _ := warns[0].Attrs["request_body"].(string)
		assert.Contains(t, logged, "[REDACTED]")
		assert.NotContains(t, logged, "secret-value")
	}
}

func TestErrorMiddleware_RecoversPanics(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestErrorMiddleware_LevelFollowsStatus(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		status := status
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		mw.Handler(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/analysis/state", nil))
	}

	assert.Len(t, handler.GetRecordsByLevel(slog.LevelInfo), 1)
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), 1)
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
}

func TestErrorMiddleware_RepanicsAbort(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		mw.Handler(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestSanitizeRequestBody(t *testing.T) {
	assert.Equal(t, "not json", sanitizeRequestBody([]byte("not json")))
	assert.Contains(t, sanitizeRequestBody([]byte(`{"password":"x"}`)), "[REDACTED]")
}
