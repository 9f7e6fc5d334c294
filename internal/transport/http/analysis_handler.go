package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sitepulse/internal/analysis"
	apierrors "sitepulse/internal/errors"
	"sitepulse/internal/exporter"
	"sitepulse/internal/infrastructure"
	"sitepulse/internal/middleware"
	"sitepulse/internal/operations"
	"sitepulse/internal/services"
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 50
)

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	errorHandler *apierrors.ErrorHandler
	validator    *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisServiceInterface, logger *slog.Logger) *AnalysisHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	errorHandler := apierrors.NewErrorHandler(logger, false)
	return &AnalysisHandler{
		service:      service,
		errorHandler: errorHandler,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		logger:       logger.With(slog.String("handler", "analysis")),
		tracer:       otel.Tracer("analysis-handler"),
	}
}

// StartAnalysisRequest is the body of POST /api/analysis/start
type StartAnalysisRequest struct {
	URL string `json:"url" validate:"required,max=2048,website"`
}

// Bind implements the render.Binder interface
func (req *StartAnalysisRequest) Bind(r *http.Request) error {
	req.URL = strings.TrimSpace(req.URL)
	return nil
}

// StateResponse is the orchestrator state plus run progress
type StateResponse struct {
	*operations.OrchestratorState
	Progress int `json:"progress"`
}

// Routes returns a chi router for analysis endpoints
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.ContentTypeValidator("application/json")).Post("/start", h.StartAnalysis)
	r.Get("/state", h.GetState)
	r.Get("/stats", h.GetStats)
	r.Get("/tabs", h.GetTabs)
	r.Get("/tabs/{kind}", h.GetTab)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{runID}", h.GetRun)
	r.Get("/export", h.Export)
	r.Delete("/", h.ClearResults)

	r.Get("/{kind}", h.GetTask)
	r.Post("/{kind}/rerun", h.RerunTask)
	r.Post("/{kind}/retry", h.RetryTask)
	r.With(middleware.ContentTypeValidator("application/json")).Post("/{kind}/autorun", h.AutoRunTask)

	return r
}

// StartAnalysis handles POST /api/analysis/start
func (h *AnalysisHandler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "analysis_handler.start_analysis")
	defer span.End()
	r = r.WithContext(ctx)

	data := &StartAnalysisRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_decode"))
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_validation"))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.StartAnalysis(ctx, data.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start refused")
		h.writeError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("analysis.subject", resp.URL))
	h.logger.InfoContext(ctx, "analysis_start_accepted",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("subject", resp.URL))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// GetState handles GET /api/analysis/state
func (h *AnalysisHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	render.JSON(w, r, StateResponse{
		OrchestratorState: h.service.State(ctx),
		Progress:          h.service.Progress(ctx),
	})
}

// GetStats handles GET /api/analysis/stats
func (h *AnalysisHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Stats(r.Context()))
}

// GetTabs handles GET /api/analysis/tabs
func (h *AnalysisHandler) GetTabs(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Tabs(r.Context()))
}

// GetTab handles GET /api/analysis/tabs/{kind}
func (h *AnalysisHandler) GetTab(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	tab, err := h.service.Tab(r.Context(), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, tab)
}

// ClearResults handles DELETE /api/analysis
func (h *AnalysisHandler) ClearResults(w http.ResponseWriter, r *http.Request) {
	h.service.ClearResults(r.Context())
	render.NoContent(w, r)
}

// GetTask handles GET /api/analysis/{kind}
func (h *AnalysisHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.TaskView(r.Context(), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// RerunTask handles POST /api/analysis/{kind}/rerun
func (h *AnalysisHandler) RerunTask(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	ctx, span := h.startSpan(r, "analysis_handler.rerun")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.kind", string(kind)))
	r = r.WithContext(ctx)

	view, err := h.service.Rerun(ctx, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rerun refused")
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// AutoRunTask handles POST /api/analysis/{kind}/autorun. The body has the
// same shape as the start request.
func (h *AnalysisHandler) AutoRunTask(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	ctx, span := h.startSpan(r, "analysis_handler.auto_run")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.kind", string(kind)))
	r = r.WithContext(ctx)

	data := &StartAnalysisRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(data); err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.AutoRun(ctx, kind, data.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auto-run refused")
		h.writeError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Bool("analysis.scheduled", resp.Scheduled))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// RetryTask handles POST /api/analysis/{kind}/retry
func (h *AnalysisHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	ctx, span := h.startSpan(r, "analysis_handler.retry")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.kind", string(kind)))
	r = r.WithContext(ctx)

	view, err := h.service.Retry(ctx, kind)
	if err != nil {
		span.RecordError(err)
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// ListRuns handles GET /api/analysis/runs
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxRunsLimit, defaultRunsLimit)
	if !ok {
		return
	}

	runs := h.service.Runs(r.Context(), limit)
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/analysis/runs/{runID}
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, record)
}

// Export handles GET /api/analysis/export
func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.query.ValidateEnum(w, r, "format", []string{string(exporter.FormatCSV), string(exporter.FormatXLSX)}, string(exporter.FormatCSV))
	if !ok {
		return
	}
	format, err := exporter.ParseFormat(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, span := h.startSpan(r, "analysis_handler.export")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", string(format)))
	r = r.WithContext(ctx)

	state := h.service.State(ctx)
	var buf bytes.Buffer
	if err := exporter.Export(&buf, format, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		h.logger.ErrorContext(ctx, "analysis_export_failed",
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		h.writeError(w, r, fmt.Errorf("%w: %v", apierrors.ErrExportFailed, err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(state.URL, time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// kindParam parses the {kind} URL parameter, responding 404 when unknown
func (h *AnalysisHandler) kindParam(w http.ResponseWriter, r *http.Request) (analysis.Kind, bool) {
	kind, err := analysis.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", services.ErrUnknownKind, err))
		return "", false
	}
	return kind, true
}

func (h *AnalysisHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	return h.tracer.Start(r.Context(), name,
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("request_id", middleware.GetReqID(r.Context())),
			attribute.String("component", "analysis_handler"),
		),
	)
}

// writeError maps service errors to RFC 7807 problems
func (h *AnalysisHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var problemType, title string

	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, exporter.ErrUnsupportedFormat):
		status, problemType, title = http.StatusBadRequest, apierrors.TypeValidation, "Invalid Request"
	case errors.Is(err, operations.ErrRunNotFound):
		status, problemType, title = http.StatusNotFound, apierrors.TypeNotFound, "Run Not Found"
	case errors.Is(err, services.ErrUnknownKind):
		status, problemType, title = http.StatusNotFound, apierrors.TypeUnknownKind, "Unknown Analysis"
	case errors.Is(err, operations.ErrAnalysisInProgress):
		status, problemType, title = http.StatusConflict, apierrors.TypeAnalysisRunning, "Analysis Running"
	case errors.Is(err, services.ErrTaskBusy), errors.Is(err, services.ErrNothingToRetry):
		status, problemType, title = http.StatusConflict, apierrors.TypeConflict, "Conflict"
	case errors.Is(err, apierrors.ErrExportFailed):
		status, problemType, title = http.StatusInternalServerError, apierrors.TypeExport, "Export Failed"
	default:
		h.errorHandler.HandleError(w, r, err)
		return
	}

	ctx := r.Context()
	h.logger.WarnContext(ctx, "analysis_request_rejected",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()))

	problem := apierrors.NewProblemDetails(status, problemType, title, err.Error(), r.URL.Path).
		WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)).
		WithExtension("request_id", middleware.GetReqID(ctx))
	_ = render.Render(w, r, problem)
}
