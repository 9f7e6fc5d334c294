package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"sitepulse/internal/analysis"
	"sitepulse/internal/config"
	apperrors "sitepulse/internal/errors"
	"sitepulse/internal/infrastructure"
	customMiddleware "sitepulse/internal/middleware"
	"sitepulse/internal/operations"
	"sitepulse/internal/resilience"
	"sitepulse/internal/services"
	handlers "sitepulse/internal/transport/http"
	ws "sitepulse/internal/websocket"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().UTC().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(config.AppVersion))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	WebSocketHub    *ws.Hub
	Broadcaster     *operations.StatusBroadcaster
	Client          *analysis.Client
	Suite           *analysis.Suite
	Orchestrator    *operations.Orchestrator
	AnalysisService *services.AnalysisService
	HealthService   *services.HealthService

	tracer       *operations.AnalysisTracer
	errorHandler *apperrors.ErrorHandler
}

// NewApplication loads the configuration and builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires every component from cfg. A nil logger uses the global logger.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("application_starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("backend", cfg.Analysis.BaseURL))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apperrors.NewErrorHandler(logger, cfg.Logging.Level == "debug"),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	tracer, err := operations.NewAnalysisTracer(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis tracer: %w", err)
	}
	a.tracer = tracer

	wsMetrics, err := ws.NewOTelMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to initialize WebSocket metrics: %w", err)
	}

	hub := ws.NewHub(a.Logger, ws.WithMetrics(wsMetrics))
	hub.Start()
	a.WebSocketHub = hub

	a.Broadcaster = operations.NewStatusBroadcaster(hub, a.Logger)
	hub.SetSnapshotProvider(operations.EventAnalysisSnapshot, func() (interface{}, bool) {
		snapshot, ok := a.Broadcaster.LastSnapshot()
		return snapshot, ok
	})

	a.Client = analysis.NewClient(a.Config.Analysis, a.Config.Breaker,
		analysis.WithClientLogger(a.Logger),
		analysis.WithTracer(a.OTelProviders.Tracer))

	retry := a.Config.Analysis.Retry
	a.Suite = analysis.NewSuite(analysis.SuiteConfig{
		Client:   a.Client,
		Notifier: a.Broadcaster,
		Logger:   a.Logger,
		ExecutorOptions: []resilience.ExecutorOption{
			resilience.WithPolicy(apperrors.RetryPolicy{
				MaxAttempts:  retry.MaxAttempts,
				InitialDelay: retry.InitialDelay,
				MaxDelay:     retry.MaxDelay,
			}),
			resilience.WithMultiplier(retry.Multiplier),
			resilience.WithRetryListener(tracer.RecordRetry),
		},
	})

	orchestrator, err := operations.NewOrchestrator(a.Suite.Runners(),
		operations.WithKindTimeout(a.Config.Analysis.KindTimeout),
		operations.WithBroadcaster(a.Broadcaster),
		operations.WithRunStore(operations.NewMemoryRunStore(a.Config.Analysis.HistoryLimit)),
		operations.WithAnalysisTracer(tracer),
		operations.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	a.Orchestrator = orchestrator

	a.AnalysisService = services.NewAnalysisService(orchestrator, a.Broadcaster, a.Logger,
		services.WithAutoRunDelay(a.Config.Analysis.AutoRunDelay))

	a.HealthService = services.NewHealthService(config.AppVersion, a.Logger,
		services.WithBuildInfo(BuildTime, BuildID),
		services.WithRunChecker(orchestrator),
		services.WithClientCounter(hub),
		services.WithBreakerReporter(a.Client))

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter unwrapped may run
	// before the WebSocket upgrade.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	wsHandler := ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.allowedOrigins(), a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → request log/recovery → Timeout
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.tracer.Metrics())
		if err != nil {
			a.Logger.Warn("otel_middleware_disabled", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(apperrors.NewErrorMiddleware(a.errorHandler, a.Logger).Handler)
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)

		r.Post("/logs", handlers.NewClientLogHandler(a.Logger).Handle)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.BearerToken(a.Logger))
			r.Use(customMiddleware.AuditLog(a.Logger))
			r.Mount("/analysis", handlers.NewAnalysisHandler(a.AnalysisService, a.Logger).Routes())
		})
	})
}

func (a *Application) allowedOrigins() []string {
	if !a.Config.Security.EnableCORS {
		return nil
	}
	return a.Config.Security.AllowedOrigins
}

// getCORSConfig returns the CORS configuration for the API
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server in the background. cancel is called when
// the server fails.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "application_started",
		slog.String("address", a.Server.Addr),
		slog.String("version", config.AppVersion),
		slog.String("log_level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server_error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "application_stopping")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var stopErr error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			stopErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Let an in-flight run settle so its record reaches the run store
	done := make(chan struct{})
	go func() {
		a.AnalysisService.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.Logger.WarnContext(ctx, "analysis_run_abandoned",
			slog.String("reason", shutdownCtx.Err().Error()))
	}

	a.Broadcaster.Stop()
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "otel_shutdown_failed", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application_stopped")
	return stopErr
}

// Run starts the application and blocks until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "signal_received", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "server_failed")
	}

	stopErr := a.Stop(context.Background())
	if err := infrastructure.CloseLogFile(); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("failed to close log file: %w", err)
	}
	return stopErr
}
