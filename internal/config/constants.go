package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	AIRequestTimeout      = 3 * time.Minute
	WorkerShutdownTimeout = 30 * time.Second
	ServerShutdownTimeout = 30 * time.Second
	TelemetryFlushTimeout = 5 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days

	// Worker timeouts
	WorkerCheckInterval     = 15 * time.Second
	WorkerQueueBlockTimeout = 5 * time.Second

	// Metrics export
	DefaultMetricsInterval = 30 * time.Second

	// Reports
	DefaultAutoCloseAfter = 7 * 24 * time.Hour
	DefaultPresignExpiry  = 15 * time.Minute
)

// Size constants
const (
	DefaultMaxScreenshotBytes int64 = 10 << 20
	DefaultMaxVideoBytes      int64 = 200 << 20
	MaxMessageLength                = 5000
	MaxTitleLength                  = 200
	MaxDescriptionLength            = 10000
	MaxFeedbackLength               = 2000
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "triage-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data: https:; media-src 'self' blob: data: https:;"
)

// Queue constants
const (
	DefaultAnalysisQueueKey = "triage:analysis:jobs"
)
