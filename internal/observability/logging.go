// Package observability provides OpenTelemetry tracing, metrics, and structured logging
// with trace correlation for the triage services.
package observability

import (
	"context"
	"strings"

	"triageapp/internal/config"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the zap logger with OpenTelemetry context support
type Logger struct {
	*zap.Logger
}

// sensitiveFields are masked before a log entry is written
var sensitiveFields = map[string]bool{
	"api_key":        true,
	"authorization":  true,
	"password":       true,
	"session_secret": true,
	"token":          true,
}

// NewLogger creates a logger at the configured level
func NewLogger(cfg *config.OpenTelemetryConfig) *Logger {
	level := zap.InfoLevel
	if cfg != nil {
		level = ParseLevel(cfg.LogLevel)
	}
	return NewLoggerWithLevel(cfg, level)
}

// NewNopLogger returns a logger that discards everything. Client packages default to it.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ParseLevel maps a config log level ("debug", "warn", ...) to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// NewLoggerWithLevel writes JSON to stdout and, when an endpoint is configured, tees every entry to OTLP
func NewLoggerWithLevel(cfg *config.OpenTelemetryConfig, level zapcore.Level) *Logger {
	if cfg == nil || !cfg.EnableLogging {
		return &Logger{Logger: zap.NewNop()}
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.StacktraceKey = "stacktrace"
	if cfg.Environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		zapLogger = zap.NewExample()
	}

	if cfg.Endpoint == "" {
		return &Logger{Logger: zapLogger}
	}

	otelCore, err := newOTLPLogCore(cfg)
	if err != nil {
		// stdout logging keeps working without the collector
		zapLogger.Error("Failed to set up OTLP logging", zap.Error(err), zap.String("endpoint", cfg.Endpoint))
		return &Logger{Logger: zapLogger}
	}
	zapLogger = zap.New(zapcore.NewTee(zapLogger.Core(), otelCore))
	zapLogger.Info("OTLP logging configured", zap.String("endpoint", cfg.Endpoint))
	return &Logger{Logger: zapLogger}
}

func newOTLPLogCore(cfg *config.OpenTelemetryConfig) (zapcore.Core, error) {
	ctx := context.Background()
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.Endpoint),
		otlploggrpc.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp log exporter: %w", err)
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)
	return otelzap.NewCore(tracerName, otelzap.WithLoggerProvider(provider)), nil
}

// Debug logs a debug message with context
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.DebugLevel, msg, mergeFields(fields...))
}

// Info logs an info message with context
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.InfoLevel, msg, mergeFields(fields...))
}

// Warn logs a warning message with context
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.WarnLevel, msg, mergeFields(fields...))
}

// Error logs an error message with context. Application errors add their code.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	allFields := mergeFields(fields...)
	if err != nil {
		allFields["error"] = err.Error()
		allFields["error_code"] = string(contextutils.GetErrorCode(err))
	}
	l.logWithContext(ctx, zap.ErrorLevel, msg, allFields)
}

// logWithContext adds the caller identity and the trace and span ids of ctx, then writes the entry
func (l *Logger) logWithContext(ctx context.Context, level zapcore.Level, msg string, fields map[string]interface{}) {
	if ce := l.Logger.Check(level, msg); ce != nil {
		if _, ok := fields["user_id"]; !ok {
			if userID := contextutils.GetUserIDFromContext(ctx); userID != 0 {
				fields["user_id"] = userID
			}
		}
		if keyID := contextutils.GetAPIKeyIDFromContext(ctx); keyID != nil {
			fields["api_key_id"] = *keyID
		}
		if spanContext := trace.SpanContextFromContext(ctx); spanContext.IsValid() {
			fields["trace_id"] = spanContext.TraceID().String()
			fields["span_id"] = spanContext.SpanID().String()
		}

		zapFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zapFields = append(zapFields, zap.Any(k, redact(k, v)))
		}
		ce.Write(zapFields...)
	}
}

func redact(key string, value interface{}) interface{} {
	if !sensitiveFields[strings.ToLower(key)] {
		return value
	}
	if s, ok := value.(string); ok {
		return contextutils.MaskAPIKey(s)
	}
	return "[REDACTED]"
}

// mergeFields copies the field maps into one so callers' maps are never modified
func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
