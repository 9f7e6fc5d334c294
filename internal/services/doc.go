// Package services implements the business logic layer of SitePulse.
// It sits between the HTTP handlers and the analysis orchestrator so that
// handlers only translate requests and errors.
//
// # Available Services
//
//	- AnalysisService: starts runs in the background, exposes state, tabs,
//	  per-kind task views, manual reruns and retries, and run history
//	- HealthService: liveness, readiness and version information
//
// # Error Handling
//
// Services return sentinel errors that handlers map to status codes:
//
//	- ErrInvalidInput and ErrUnknownKind for bad requests
//	- operations.ErrAnalysisInProgress and ErrTaskBusy for conflicts
//	- ErrNothingToRetry when no retry window is open
//
// # Testing
//
// Services are tested against real orchestrators whose runners are stubs or
// tasks talking to an httptest backend:
//
//	backend := testutil.NewFakeBackend(t)
//	svc := NewAnalysisService(orchestrator, broadcaster, logger)
//	_, err := svc.StartAnalysis(ctx, "example.com")
//	svc.Wait()
package services
