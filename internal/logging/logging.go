// Package logging provides the structured logging types shared across every
// layer of the concurrency core. It exists so that packages can reference a
// logger type without importing log/slog or a concrete handler directly.
package logging

import (
	"log/slog"
	"os"
)

// Logger is a type alias for slog.Logger so callers can depend on this
// package's type without importing log/slog.
type Logger = slog.Logger

// Attr is a type alias for slog.Attr for structured logging attributes.
type Attr = slog.Attr

// Level is a type alias for slog.Level.
type Level = slog.Level

// Log level constants.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Attribute constructors, re-exported from slog for convenience.
var (
	String   = slog.String
	Int      = slog.Int
	Int64    = slog.Int64
	Float64  = slog.Float64
	Bool     = slog.Bool
	Duration = slog.Duration
	Time     = slog.Time
	Any      = slog.Any
	Group    = slog.Group
)

// Log key constants for consistent field names across the scheduler, bus,
// datastore, and sync loop.
const (
	KeyService       = "service"
	KeyEnv           = "env"
	KeyIntent        = "intent"
	KeyProvider      = "provider"
	KeyTaskID        = "task_id"
	KeyPriority      = "priority"
	KeyTopic         = "topic"
	KeyCorrelationID = "correlation_id"
	KeyDuration      = "duration_ms"
)

// Config controls the construction of the default logger.
type Config struct {
	ServiceName string
	Env         string
	Level       string
}

// New creates a structured JSON logger writing to stdout, with service and
// environment attributes attached to every entry. Log level is controlled by
// cfg.Level ("debug", "info", "warn", "error"; defaults to info).
func New(cfg Config) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler).With(
		KeyService, cfg.ServiceName,
		KeyEnv, cfg.Env,
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID returns a child logger carrying the message bus's
// request_response correlation id, for tracing a request/reply pair through
// the dispatcher and subscriber callbacks.
func WithCorrelationID(base *Logger, correlationID string) *Logger {
	if correlationID == "" {
		return base
	}
	return base.With(KeyCorrelationID, correlationID)
}
