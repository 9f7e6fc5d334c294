package config

import "time"

// Application constants
const (
	AppName    = "SitePulse"
	AppVersion = "1.0.0"

	// EnvPrefix is the envconfig namespace, e.g. SITEPULSE_SERVER_PORT
	EnvPrefix = "SITEPULSE"

	// ConfigFileEnv names the variable holding an explicit YAML config path
	ConfigFileEnv = "SITEPULSE_CONFIG"
)

// Analysis defaults
const (
	DefaultAnalysisBaseURL     = "http://localhost:3000"
	DefaultRequestTimeout      = 30 * time.Second
	DefaultKindTimeout         = 2 * time.Minute
	DefaultAutoRunDelay        = 100 * time.Millisecond
	DefaultRetryMaxAttempts    = 3
	DefaultRetryInitialDelay   = 1 * time.Second
	DefaultRetryMaxDelay       = 30 * time.Second
	DefaultRetryMultiplier     = 2.0
	DefaultRunHistoryLimit     = 50
	DefaultBreakerFailures     = 5
	DefaultBreakerOpenTimeout  = 30 * time.Second
	DefaultBreakerHalfOpenPass = 1
)
