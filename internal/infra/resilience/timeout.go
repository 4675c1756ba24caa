package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Timeout provides context-based timeout functionality.
// It wraps operations with a configured timeout duration. internal/core/dataio
// uses a single Timeout (internal/infra/fx's providePrimaryTimeout) for every
// provider write it makes, primary and fallback alike; the Outbound
// Bridge's broker publishers go through ForExternalAPI() via ResilienceWrapper.
type Timeout interface {
	// Do executes the given function with timeout.
	// It returns ErrTimeoutExceeded (RES-003) if the operation times out.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// Name returns the name of this timeout for metrics/logging.
	Name() string

	// Duration returns the configured timeout duration.
	Duration() time.Duration
}

// timeout wraps context.WithTimeout with metrics and logging.
type timeout struct {
	name     string
	duration time.Duration
	metrics  *TimeoutMetrics
	logger   *slog.Logger
}

// TimeoutOption configures a timeout.
type TimeoutOption func(*timeoutOptions)

type timeoutOptions struct {
	metrics *TimeoutMetrics
	logger  *slog.Logger
}

// WithTimeoutMetrics sets the metrics for the timeout.
// If m is nil, metrics will not be recorded (noop behavior).
func WithTimeoutMetrics(m *TimeoutMetrics) TimeoutOption {
	return func(o *timeoutOptions) {
		if m != nil {
			o.metrics = m
		}
		// If nil, keep the default (nil) - metrics are optional
	}
}

// WithTimeoutLogger sets the logger for the timeout.
// If l is nil, the default logger (slog.Default()) will be used.
func WithTimeoutLogger(l *slog.Logger) TimeoutOption {
	return func(o *timeoutOptions) {
		if l != nil {
			o.logger = l
		}
		// If nil, keep the default logger set in NewTimeout
	}
}

// NewTimeout creates a new timeout wrapper with the given name and duration.
// Options can be used to configure metrics and logging.
func NewTimeout(name string, duration time.Duration, opts ...TimeoutOption) Timeout {
	options := &timeoutOptions{
		metrics: nil,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &timeout{
		name:     name,
		duration: duration,
		metrics:  options.metrics,
		logger:   options.logger,
	}
}

// Do executes the given function with a timeout.
// If the operation times out, it returns ErrTimeoutExceeded (RES-003).
// If the parent context is cancelled, the cancellation is propagated.
// Context cancellation (context.Canceled) is NOT wrapped as timeout error.
func (t *timeout) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	// Apply timeout
	ctx, cancel := context.WithTimeout(ctx, t.duration)
	defer cancel()

	// Execute operation
	err := fn(ctx)

	duration := time.Since(start)

	// Handle result
	if err != nil {
		// Check specifically for DeadlineExceeded (timeout)
		// context.Canceled should NOT be wrapped as timeout error
		if errors.Is(err, context.DeadlineExceeded) {
			t.recordMetrics("timeout", duration)
			t.logTimeout(duration)
			return NewTimeoutExceededError(err)
		}

		// Other errors (including context.Canceled) are passed through
		t.recordMetrics("error", duration)
		return err
	}

	// Success
	t.recordMetrics("success", duration)
	t.logSuccess(duration)
	return nil
}

// Name returns the name of this timeout.
func (t *timeout) Name() string {
	return t.name
}

// Duration returns the configured timeout duration.
func (t *timeout) Duration() time.Duration {
	return t.duration
}

// recordMetrics records the operation result to Prometheus metrics.
func (t *timeout) recordMetrics(result string, duration time.Duration) {
	if t.metrics != nil {
		t.metrics.RecordOperation(t.name, result, duration.Seconds())
	}
}

// logSuccess logs a successful timeout operation at DEBUG level.
func (t *timeout) logSuccess(duration time.Duration) {
	t.logger.Debug("operation completed within timeout",
		"name", t.name,
		"timeout_duration", t.duration.String(),
		"actual_duration_ms", duration.Milliseconds(),
		"result", "success",
	)
}

// logTimeout logs a timeout exceeded at WARN level.
func (t *timeout) logTimeout(duration time.Duration) {
	t.logger.Warn("operation exceeded timeout",
		"name", t.name,
		"timeout_duration", t.duration.String(),
		"actual_duration_ms", duration.Milliseconds(),
		"result", "timeout",
	)
}

// TimeoutPresets provides pre-configured timeouts from TimeoutConfig. The
// Outbound Bridge's broker publishers are the only caller, via ForExternalAPI;
// internal/core/dataio's Timeout is built directly from the
// TIMEOUT_PRIMARY_PROVIDER setting instead of through this struct
// (internal/infra/fx's providePrimaryTimeout) and bounds its fallback writes
// as well as its primary writes; emergency-buffer writes run without one.
type TimeoutPresets struct {
	externalAPI Timeout
	opts        []TimeoutOption
}

// NewTimeoutPresets creates presets from TimeoutConfig.
// Options are applied to all created timeouts.
func NewTimeoutPresets(cfg TimeoutConfig, opts ...TimeoutOption) *TimeoutPresets {
	return &TimeoutPresets{
		externalAPI: NewTimeout("external_api", cfg.ExternalAPI, opts...),
		opts:        opts,
	}
}

// ForExternalAPI returns a timeout configured for external API calls.
func (p *TimeoutPresets) ForExternalAPI() Timeout {
	return p.externalAPI
}
