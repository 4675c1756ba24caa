// Package observability provides logging and metrics utilities shared by the
// scheduler, bus, and data-IO layers.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/iruldev/concurrency-core/internal/infra/config"
)

// Structured logging attribute keys used consistently across every
// component's log entries.
const (
	LogKeyService   = "service"
	LogKeyEnv       = "env"
	LogKeyRequestID = "request_id"
	LogKeyTraceID   = "trace_id"
	LogKeySpanID    = "span_id"
	LogKeyComponent = "component"
	LogKeyDuration  = "duration_ms"
)

type correlationKey struct{}

// Correlation carries the request/trace identifiers threaded through context
// so LoggerFromContext can attach them to every log line for a request.
type Correlation struct {
	RequestID string
	TraceID   string
	SpanID    string
}

// WithCorrelation returns a context carrying correlation identifiers for
// downstream logging.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// NewLogger creates a structured JSON logger with default attributes. The
// logger includes service and environment fields on every log entry. Log
// level is controlled via the LOG_LEVEL configuration.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With(
		LogKeyService, cfg.ServiceName,
		LogKeyEnv, cfg.Env,
	)
}

// parseLogLevel converts a log level string to slog.Level. Defaults to Info
// level for unknown values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggerFromContext returns a logger enriched with request_id, trace_id, and
// span_id from context, if present. This enables request correlation across
// all log entries in a request lifecycle.
func LoggerFromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	c, ok := ctx.Value(correlationKey{}).(Correlation)
	if !ok {
		return base
	}
	l := base
	if c.RequestID != "" {
		l = l.With(LogKeyRequestID, c.RequestID)
	}
	if c.TraceID != "" {
		l = l.With(LogKeyTraceID, c.TraceID)
	}
	if c.SpanID != "" {
		l = l.With(LogKeySpanID, c.SpanID)
	}
	return l
}
