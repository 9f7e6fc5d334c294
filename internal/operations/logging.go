package operations

import (
	"context"
	"log/slog"
	"time"

	"sitepulse/internal/analysis"
)

// logRunStart logs the start of a run
func (o *Orchestrator) logRunStart(ctx context.Context, runID, subject string) {
	o.logger.InfoContext(ctx, "analysis_started",
		slog.String("run_id", runID),
		slog.String("subject", subject),
		slog.Int("kinds", len(analysis.Sequence)))
}

// logRunComplete logs the end of a run
func (o *Orchestrator) logRunComplete(ctx context.Context, runID string, stats Stats, duration time.Duration) {
	o.logger.InfoContext(ctx, "analysis_completed",
		slog.String("run_id", runID),
		slog.Int("success", stats.Success),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", duration))
}

// logKindStart logs a kind entering running
func (o *Orchestrator) logKindStart(ctx context.Context, runID string, kind analysis.Kind, index int) {
	o.logger.InfoContext(ctx, "kind_started",
		slog.String("run_id", runID),
		slog.String("kind", string(kind)),
		slog.Int("index", index))
}

// logKindSettled logs a kind leaving running
func (o *Orchestrator) logKindSettled(ctx context.Context, runID string, kind analysis.Kind, status Status, duration time.Duration, message string) {
	attrs := []any{
		slog.String("run_id", runID),
		slog.String("kind", string(kind)),
		slog.String("status", string(status)),
		slog.Duration("duration", duration),
	}
	if status == StatusError {
		o.logger.WarnContext(ctx, "kind_failed", append(attrs, slog.String("error", message))...)
		return
	}
	o.logger.InfoContext(ctx, "kind_succeeded", attrs...)
}

// logTransitionError logs a rejected state change
func (o *Orchestrator) logTransitionError(ctx context.Context, kind analysis.Kind, err error) {
	o.logger.ErrorContext(ctx, "invalid_transition",
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))
}
