package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CircuitBreakerMetrics provides Prometheus metrics for circuit breaker monitoring.
type CircuitBreakerMetrics struct {
	// state tracks the current state of each circuit breaker using {name, state} labels.
	// Each state (closed, open, half-open) is a separate time series with value 1 (active) or 0 (inactive).
	state *prometheus.GaugeVec

	// transitions counts state transitions.
	transitions *prometheus.CounterVec

	// operationDuration measures the duration of operations executed through the circuit breaker.
	operationDuration *prometheus.HistogramVec
}

// NewCircuitBreakerMetrics creates and registers circuit breaker metrics with the given registry.
// If registry is nil, a new registry is created.
func NewCircuitBreakerMetrics(registry *prometheus.Registry) *CircuitBreakerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (1=active, 0=inactive for each state label)",
		},
		[]string{"name", "state"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "circuit_breaker_operation_duration_seconds",
			Help: "Duration of operations executed through the circuit breaker",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		[]string{"name", "result"},
	)

	// Register metrics with registry.
	// Errors are intentionally ignored as they indicate metrics are already registered,
	// which is expected when creating multiple circuit breakers in the same process.
	_ = registry.Register(state)
	_ = registry.Register(transitions)
	_ = registry.Register(operationDuration)

	return &CircuitBreakerMetrics{
		state:             state,
		transitions:       transitions,
		operationDuration: operationDuration,
	}
}

// SetState updates the state gauge for a circuit breaker.
// Sets the active state to 1 and all other states to 0.
// state: 0=closed, 1=open, 2=half-open
func (m *CircuitBreakerMetrics) SetState(name string, state int) {
	// Set all states to 0 first
	m.state.WithLabelValues(name, "closed").Set(0)
	m.state.WithLabelValues(name, "open").Set(0)
	m.state.WithLabelValues(name, "half-open").Set(0)

	// Set the active state to 1
	switch state {
	case 0:
		m.state.WithLabelValues(name, "closed").Set(1)
	case 1:
		m.state.WithLabelValues(name, "open").Set(1)
	case 2:
		m.state.WithLabelValues(name, "half-open").Set(1)
	}
}

// RecordTransition increments the transition counter for a circuit breaker.
func (m *CircuitBreakerMetrics) RecordTransition(name, from, to string) {
	m.transitions.WithLabelValues(name, from, to).Inc()
}

// RecordOperationDuration records the duration of an operation and its result.
// result should be one of: "success", "failure", "rejected"
func (m *CircuitBreakerMetrics) RecordOperationDuration(name, result string, durationSeconds float64) {
	m.operationDuration.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *CircuitBreakerMetrics) Reset() {
	m.state.Reset()
	m.transitions.Reset()
	m.operationDuration.Reset()
}

// NoopCircuitBreakerMetrics returns a no-op metrics implementation for testing.
func NoopCircuitBreakerMetrics() *CircuitBreakerMetrics {
	return NewCircuitBreakerMetrics(prometheus.NewRegistry())
}

// RetryMetrics provides Prometheus metrics for retrier monitoring.
type RetryMetrics struct {
	operationTotal  *prometheus.CounterVec
	attemptTotal    *prometheus.HistogramVec
	durationSeconds *prometheus.HistogramVec
}

// NewRetryMetrics creates and registers retrier metrics with the given registry.
// If registry is nil, a new registry is created.
func NewRetryMetrics(registry *prometheus.Registry) *RetryMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_operations_total",
			Help: "Total number of retried operations by result",
		},
		[]string{"name", "result"},
	)
	attemptTotal := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retry_attempts",
			Help:    "Number of attempts taken per operation",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
		[]string{"name", "result"},
	)
	durationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retry_duration_seconds",
			Help:    "Total duration of a retried operation, including backoff",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name", "result"},
	)

	_ = registry.Register(operationTotal)
	_ = registry.Register(attemptTotal)
	_ = registry.Register(durationSeconds)

	return &RetryMetrics{operationTotal: operationTotal, attemptTotal: attemptTotal, durationSeconds: durationSeconds}
}

// RecordOperation records the outcome of one retried operation.
func (m *RetryMetrics) RecordOperation(name, result string, attempt int, durationSeconds float64) {
	m.operationTotal.WithLabelValues(name, result).Inc()
	m.attemptTotal.WithLabelValues(name, result).Observe(float64(attempt))
	m.durationSeconds.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *RetryMetrics) Reset() {
	m.operationTotal.Reset()
	m.attemptTotal.Reset()
	m.durationSeconds.Reset()
}

// NoopRetryMetrics returns a metrics implementation backed by its own
// private registry, for tests that need a RetryMetrics but don't care about
// the values it records.
func NoopRetryMetrics() *RetryMetrics {
	return NewRetryMetrics(prometheus.NewRegistry())
}

// TimeoutMetrics provides Prometheus metrics for timeout-wrapped operations.
type TimeoutMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewTimeoutMetrics creates and registers timeout metrics with the given registry.
func NewTimeoutMetrics(registry *prometheus.Registry) *TimeoutMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeout_operations_total",
			Help: "Total number of timeout-wrapped operations by result",
		},
		[]string{"name", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timeout_operation_duration_seconds",
			Help:    "Duration of timeout-wrapped operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name", "result"},
	)

	_ = registry.Register(operations)
	_ = registry.Register(duration)

	return &TimeoutMetrics{operations: operations, duration: duration}
}

// RecordOperation records the outcome of one timeout-wrapped operation.
func (m *TimeoutMetrics) RecordOperation(name, result string, durationSeconds float64) {
	m.operations.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name, result).Observe(durationSeconds)
}

// Reset resets all metrics. Useful for testing.
func (m *TimeoutMetrics) Reset() {
	m.operations.Reset()
	m.duration.Reset()
}

// NoopTimeoutMetrics returns a metrics implementation backed by its own
// private registry, for tests that need a TimeoutMetrics but don't care
// about the values it records.
func NoopTimeoutMetrics() *TimeoutMetrics {
	return NewTimeoutMetrics(prometheus.NewRegistry())
}

// BulkheadMetrics provides Prometheus metrics for bulkhead monitoring.
type BulkheadMetrics struct {
	operations   *prometheus.CounterVec
	active       *prometheus.GaugeVec
	waiting      *prometheus.GaugeVec
	waitDuration *prometheus.HistogramVec
}

// NewBulkheadMetrics creates and registers bulkhead metrics with the given registry.
func NewBulkheadMetrics(registry *prometheus.Registry) *BulkheadMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_operations_total",
			Help: "Total number of bulkhead-guarded operations by result",
		},
		[]string{"name", "result"},
	)
	active := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_active",
			Help: "Current number of active bulkhead executions",
		},
		[]string{"name"},
	)
	waiting := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_waiting",
			Help: "Current number of operations waiting for a bulkhead slot",
		},
		[]string{"name"},
	)
	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkhead_wait_duration_seconds",
			Help:    "Time spent waiting for a bulkhead slot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	_ = registry.Register(operations)
	_ = registry.Register(active)
	_ = registry.Register(waiting)
	_ = registry.Register(waitDuration)

	return &BulkheadMetrics{operations: operations, active: active, waiting: waiting, waitDuration: waitDuration}
}

// RecordOperation records the outcome of one bulkhead-guarded operation.
func (m *BulkheadMetrics) RecordOperation(name, result string) {
	m.operations.WithLabelValues(name, result).Inc()
}

// SetActive sets the current active-execution gauge for name.
func (m *BulkheadMetrics) SetActive(name string, active int) {
	m.active.WithLabelValues(name).Set(float64(active))
}

// SetWaiting sets the current waiting-operation gauge for name.
func (m *BulkheadMetrics) SetWaiting(name string, waiting int) {
	m.waiting.WithLabelValues(name).Set(float64(waiting))
}

// RecordWaitDuration records how long an operation waited for a slot.
func (m *BulkheadMetrics) RecordWaitDuration(name string, seconds float64) {
	m.waitDuration.WithLabelValues(name).Observe(seconds)
}

// Reset resets all metrics. Useful for testing.
func (m *BulkheadMetrics) Reset() {
	m.operations.Reset()
	m.active.Reset()
	m.waiting.Reset()
	m.waitDuration.Reset()
}

// NoopBulkheadMetrics returns a metrics implementation backed by its own
// private registry, for tests that need a BulkheadMetrics but don't care
// about the values it records.
func NoopBulkheadMetrics() *BulkheadMetrics {
	return NewBulkheadMetrics(prometheus.NewRegistry())
}

// ShutdownMetrics provides Prometheus metrics for graceful-shutdown monitoring.
type ShutdownMetrics struct {
	activeRequests      *prometheus.GaugeVec
	rejections          prometheus.Counter
	inProgress          prometheus.Gauge
	shutdownDuration    *prometheus.HistogramVec
}

// NewShutdownMetrics creates and registers shutdown-coordinator metrics with
// the given registry.
func NewShutdownMetrics(registry *prometheus.Registry) *ShutdownMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	activeRequests := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shutdown_active_requests",
			Help: "Current number of in-flight requests tracked by the shutdown coordinator",
		},
		[]string{"name"},
	)
	rejections := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shutdown_rejections_total",
			Help: "Total number of requests rejected because shutdown was already in progress",
		},
	)
	inProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdown_in_progress",
			Help: "1 if graceful shutdown has been initiated, 0 otherwise",
		},
	)
	shutdownDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shutdown_drain_duration_seconds",
			Help:    "Time spent draining in-flight requests during shutdown",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	_ = registry.Register(activeRequests)
	_ = registry.Register(rejections)
	_ = registry.Register(inProgress)
	_ = registry.Register(shutdownDuration)

	return &ShutdownMetrics{
		activeRequests:   activeRequests,
		rejections:       rejections,
		inProgress:       inProgress,
		shutdownDuration: shutdownDuration,
	}
}

// SetActiveRequests sets the in-flight request gauge.
func (m *ShutdownMetrics) SetActiveRequests(count int64) {
	m.activeRequests.WithLabelValues("default").Set(float64(count))
}

// RecordRejection increments the rejected-request counter.
func (m *ShutdownMetrics) RecordRejection() {
	m.rejections.Inc()
}

// SetShutdownInProgress sets whether shutdown has been initiated.
func (m *ShutdownMetrics) SetShutdownInProgress(inProgress bool) {
	if inProgress {
		m.inProgress.Set(1)
		return
	}
	m.inProgress.Set(0)
}

// RecordShutdownDuration records how long the drain phase took.
func (m *ShutdownMetrics) RecordShutdownDuration(d time.Duration, result string) {
	m.shutdownDuration.WithLabelValues(result).Observe(d.Seconds())
}
