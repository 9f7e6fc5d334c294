// Package app wires the SitePulse server together and owns its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, an optional YAML file and SITEPULSE_* variables
//	2. Initialize structured logging and OpenTelemetry providers
//	3. Start the WebSocket hub and the status broadcaster
//	4. Build the analysis client, the eight check tasks and the orchestrator
//	5. Set up HTTP handlers and middleware
//	6. Configure the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    os.Exit(1)
//	}
//	if err := application.Run(); err != nil {
//	    os.Exit(1)
//	}
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM. Stop then drains HTTP requests, lets an
// in-flight analysis run settle within the shutdown timeout, closes WebSocket
// clients and flushes telemetry.
package app
