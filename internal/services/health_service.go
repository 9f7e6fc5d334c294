package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"sitepulse/internal/analysis"
)

// RunChecker reports whether an analysis is running
type RunChecker interface {
	IsRunning() bool
}

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// BreakerReporter reports the circuit breaker position per endpoint
type BreakerReporter interface {
	BreakerStates() map[analysis.Kind]string
}

// HealthService provides health check functionality
type HealthService struct {
	version      string
	buildTime    string
	buildID      string
	orchestrator RunChecker
	hub          ClientCounter
	breakers     BreakerReporter
	startTime    time.Time
	logger       *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// HealthOption configures a HealthService
type HealthOption func(*HealthService)

// WithBuildInfo sets build time and build id reported by Version
func WithBuildInfo(buildTime, buildID string) HealthOption {
	return func(hs *HealthService) {
		hs.buildTime = buildTime
		hs.buildID = buildID
	}
}

// WithRunChecker reports the orchestrator in readiness
func WithRunChecker(rc RunChecker) HealthOption {
	return func(hs *HealthService) { hs.orchestrator = rc }
}

// WithClientCounter reports the WebSocket hub in readiness
func WithClientCounter(cc ClientCounter) HealthOption {
	return func(hs *HealthService) { hs.hub = cc }
}

// WithBreakerReporter reports the backend breakers in readiness
func WithBreakerReporter(br BreakerReporter) HealthOption {
	return func(hs *HealthService) { hs.breakers = br }
}

// NewHealthService creates a new health service
func NewHealthService(version string, logger *slog.Logger, opts ...HealthOption) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	hs := &HealthService{
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(hs)
	}

	logger.Info("health_service_initialized",
		slog.String("version", version),
		slog.String("build_time", hs.buildTime),
		slog.String("build_id", hs.buildID))
	return hs
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}

	hs.logger.DebugContext(ctx, "health_check",
		slog.String("status", status.Status),
		slog.Duration("uptime", time.Since(hs.startTime)))
	return status
}

// ReadinessCheck returns readiness status. An open breaker degrades the
// analysis backend but does not make the service unready.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}

	status.Services["websocket"] = hs.checkWebSocketHealth()
	status.Services["orchestrator"] = hs.checkOrchestratorHealth()
	status.Services["backend"] = hs.checkBackendHealth()

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status == "not_ready" {
			status.Status = "not_ready"
			break
		}
	}

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}

	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.buildID != "" {
		result["build_id"] = hs.buildID
	}

	return result
}

// checkWebSocketHealth checks WebSocket service health
func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "WebSocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.hub.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

// checkOrchestratorHealth checks the analysis orchestrator
func (hs *HealthService) checkOrchestratorHealth() ServiceHealth {
	if hs.orchestrator == nil {
		return ServiceHealth{Status: "not_ready", Message: "orchestrator not initialized"}
	}
	if hs.orchestrator.IsRunning() {
		return ServiceHealth{Status: "ready", Message: "analysis running"}
	}
	return ServiceHealth{Status: "ready", Message: "idle"}
}

// checkBackendHealth reports open breakers
func (hs *HealthService) checkBackendHealth() ServiceHealth {
	if hs.breakers == nil {
		return ServiceHealth{Status: "ready", Message: "breakers not reported"}
	}

	open := 0
	for _, state := range hs.breakers.BreakerStates() {
		if state != "closed" {
			open++
		}
	}
	if open > 0 {
		return ServiceHealth{Status: "degraded", Message: fmt.Sprintf("%d endpoints failing fast", open)}
	}
	return ServiceHealth{Status: "ready", Message: "all endpoints closed"}
}
