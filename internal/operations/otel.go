package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sitepulse/internal/analysis"
	"sitepulse/internal/infrastructure"
)

const (
	TracerName = "sitepulse.analysis"
)

// AnalysisTracer provides OpenTelemetry instrumentation for analysis runs
type AnalysisTracer struct {
	tracer          trace.Tracer
	businessMetrics *infrastructure.BusinessMetrics
}

// NewAnalysisTracer creates a tracer recording into providers. Nil providers
// yield a tracer on the global provider that records no metrics.
func NewAnalysisTracer(providers *infrastructure.OTelProviders) (*AnalysisTracer, error) {
	if providers == nil {
		return &AnalysisTracer{tracer: otel.Tracer(TracerName)}, nil
	}

	businessMetrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &AnalysisTracer{
		tracer:          otel.Tracer(TracerName),
		businessMetrics: businessMetrics,
	}, nil
}

// Metrics returns the business metrics, nil when none are recorded
func (at *AnalysisTracer) Metrics() *infrastructure.BusinessMetrics {
	return at.businessMetrics
}

// TraceRun creates a span for a whole run
func (at *AnalysisTracer) TraceRun(ctx context.Context, runID, subject string) (context.Context, trace.Span) {
	ctx, span := at.tracer.Start(ctx, "analysis.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("analysis.run_id", runID),
			attribute.String("analysis.subject", subject),
			attribute.Int("analysis.kinds", len(analysis.Sequence)),
		),
	)
	infrastructure.RecordActiveRunChange(ctx, at.businessMetrics, 1)
	return ctx, span
}

// TraceKind creates a span for one kind of a run
func (at *AnalysisTracer) TraceKind(ctx context.Context, kind analysis.Kind, index int) (context.Context, trace.Span) {
	return at.tracer.Start(ctx, fmt.Sprintf("analysis.kind.%s", kind),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("analysis.kind", string(kind)),
			attribute.Int("analysis.index", index),
		),
	)
}

// RecordKindCompletion ends the kind span with its terminal status
func (at *AnalysisTracer) RecordKindCompletion(ctx context.Context, span trace.Span, kind analysis.Kind, status Status, duration time.Duration, message string) {
	span.SetAttributes(
		attribute.String("analysis.status", string(status)),
		attribute.Float64("analysis.duration_seconds", duration.Seconds()),
	)
	infrastructure.RecordKindMetrics(ctx, at.businessMetrics, string(kind), string(status), duration)

	if status == StatusSuccess {
		span.SetStatus(codes.Ok, "analysis succeeded")
	} else {
		span.SetStatus(codes.Error, message)
	}
	span.End()
}

// RecordRunCompletion ends the run span with its summary
func (at *AnalysisTracer) RecordRunCompletion(ctx context.Context, span trace.Span, stats Stats, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("analysis.success", stats.Success),
		attribute.Int("analysis.failed", stats.Failed),
		attribute.Float64("analysis.duration_seconds", duration.Seconds()),
	)
	infrastructure.RecordRunMetrics(ctx, at.businessMetrics, stats.Success, stats.Failed, duration)
	infrastructure.RecordActiveRunChange(ctx, at.businessMetrics, -1)

	infrastructure.AddSpanEvent(ctx, "analysis.completed", map[string]interface{}{
		"success":  stats.Success,
		"failed":   stats.Failed,
		"duration": duration.Seconds(),
	})

	if stats.Failed == 0 {
		span.SetStatus(codes.Ok, "all analyses succeeded")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d analyses failed", stats.Failed, stats.Total))
	}
	span.End()
}

// RecordRetry counts a scheduled retry. It matches resilience.RetryListener.
func (at *AnalysisTracer) RecordRetry(ctx context.Context, feature string, attempt int, delay time.Duration) {
	infrastructure.RecordRetry(ctx, at.businessMetrics, feature, attempt)
	infrastructure.AddSpanEvent(ctx, "analysis.retry_scheduled", map[string]interface{}{
		"feature": feature,
		"attempt": attempt,
		"delay":   delay.Seconds(),
	})
}
