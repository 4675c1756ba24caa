package observability

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iruldev/concurrency-core/internal/infra/config"
)

// Logger is the hot-path logger used by the scheduler, bus, and bridge
// adapters. These components sit closer to the reference's worker-pattern
// layer, which logs through zap rather than slog.
type Logger = *zap.Logger

// Field is a structured logging attribute, re-exported so callers need only
// import this package.
type Field = zap.Field

// String builds a string-valued structured logging field.
func String(key, value string) Field { return zap.String(key, value) }

// Bool builds a bool-valued structured logging field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Err builds an error-valued structured logging field.
func Err(err error) Field { return zap.Error(err) }

// Duration builds a duration-valued structured logging field.
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Int builds an int-valued structured logging field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 builds an int64-valued structured logging field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// NewNopLoggerInterface returns a Logger that discards everything, for use
// in tests that need a valid logger but don't assert on its output.
func NewNopLoggerInterface() Logger { return zap.NewNop() }

// NewZapLogger builds the zap logger used by hot-path components, honoring
// the same LOG_LEVEL configuration as NewLogger.
func NewZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel(cfg.LogLevel))
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String(LogKeyService, cfg.ServiceName),
		zap.String(LogKeyEnv, cfg.Env),
	), nil
}

func zapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
