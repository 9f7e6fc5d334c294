// Package http implements the HTTP handlers of the SitePulse server.
// Handlers are a thin layer over the services package: they parse and
// validate requests, call the service, and render JSON responses.
//
// # Endpoints
//
//	POST   /api/analysis/start         start a run (202, 400, 409)
//	GET    /api/analysis/state         orchestrator state and progress
//	GET    /api/analysis/stats         run summary
//	GET    /api/analysis/tabs          tab status of every kind
//	GET    /api/analysis/tabs/{kind}   tab status of one kind
//	DELETE /api/analysis               clear results
//	GET    /api/analysis/{kind}        task view
//	POST   /api/analysis/{kind}/rerun  re-execute against the current subject
//	POST   /api/analysis/{kind}/retry  replay a failed call while backing off
//	POST   /api/analysis/{kind}/autorun  point one tab at a url and run it once
//	GET    /api/analysis/runs          finished runs, newest first
//	GET    /api/analysis/export        csv or xlsx of the current results
//	POST   /api/logs                   relay a dashboard log entry
//	GET    /api/health[/ready|/live]   health probes
//	GET    /api/version                build information
//
// # Error Handling
//
// All errors are RFC 7807 Problem Details rendered with go-chi/render:
//
//	{
//	    "type": "/errors/analysis/already-running",
//	    "title": "Analysis Running",
//	    "status": 409,
//	    "detail": "an analysis is already running",
//	    "instance": "/api/analysis/start",
//	    "trace_id": "..."
//	}
//
// # Testing
//
// Handlers are tested with httptest against testify mocks of the service
// interface, and end to end against a fake analysis backend.
package http
