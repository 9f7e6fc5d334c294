package http

import (
	"context"

	"sitepulse/internal/analysis"
	"sitepulse/internal/operations"
	"sitepulse/internal/services"
)

// AnalysisServiceInterface defines the interface for the analysis service
type AnalysisServiceInterface interface {
	StartAnalysis(ctx context.Context, rawURL string) (services.StartResponse, error)
	ClearResults(ctx context.Context)
	State(ctx context.Context) *operations.OrchestratorState
	Stats(ctx context.Context) operations.Stats
	Progress(ctx context.Context) int
	Tabs(ctx context.Context) []services.TabStatus
	Tab(ctx context.Context, kind analysis.Kind) (services.TabStatus, error)
	TaskView(ctx context.Context, kind analysis.Kind) (analysis.View, error)
	Rerun(ctx context.Context, kind analysis.Kind) (analysis.View, error)
	Retry(ctx context.Context, kind analysis.Kind) (analysis.View, error)
	AutoRun(ctx context.Context, kind analysis.Kind, rawURL string) (services.AutoRunResponse, error)
	Runs(ctx context.Context, limit int) []operations.RunRecord
	Run(ctx context.Context, id string) (operations.RunRecord, error)
}
