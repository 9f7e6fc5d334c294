// Package config loads SitePulse configuration.
//
// Values come from three layers, highest precedence first:
//
//	1. Environment variables prefixed with SITEPULSE_
//	2. An optional YAML file (SITEPULSE_CONFIG, or config.yaml / configs/config.yaml)
//	3. Struct tag defaults
//
// Example:
//
//	SITEPULSE_SERVER_PORT=8080
//	SITEPULSE_ANALYSIS_BASE_URL=https://checks.internal
//	SITEPULSE_ANALYSIS_TOKEN=secret
//	SITEPULSE_ANALYSIS_RETRY_MAX_ATTEMPTS=3
//
// The loaded Config is validated with go-playground/validator before use.
package config
