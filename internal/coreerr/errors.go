// Package coreerr provides the stable, coded error vocabulary shared by the
// scheduler, datastore, bus, and sync components of the concurrency core.
package coreerr

// Error codes are STABLE and must not change once published; callers match on
// them with errors.Is, not on message text.
const (
	CodeQueueFull               = "CORE-001"
	CodeTimeout                 = "CORE-002"
	CodeCancelled               = "CORE-003"
	CodeProviderUnavailable     = "CORE-004"
	CodeProviderFailure         = "CORE-005"
	CodeSerializationError      = "CORE-006"
	CodeSubscriberCallbackError = "CORE-007"
	CodeValidationError         = "CORE-008"
)

// CoreError is a stable, coded error with optional wrapped cause.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches by code, following the resilience package's error-comparison convention.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrQueueFull               = &CoreError{Code: CodeQueueFull, Message: "queue is at capacity"}
	ErrTimeout                 = &CoreError{Code: CodeTimeout, Message: "operation timed out"}
	ErrCancelled               = &CoreError{Code: CodeCancelled, Message: "operation was cancelled"}
	ErrProviderUnavailable     = &CoreError{Code: CodeProviderUnavailable, Message: "provider unavailable"}
	ErrProviderFailure         = &CoreError{Code: CodeProviderFailure, Message: "provider operation failed"}
	ErrSerializationError      = &CoreError{Code: CodeSerializationError, Message: "serialization failed"}
	ErrSubscriberCallbackError = &CoreError{Code: CodeSubscriberCallbackError, Message: "subscriber callback failed"}
	ErrValidationError         = &CoreError{Code: CodeValidationError, Message: "validation failed"}
)

// NewQueueFullError builds a CORE-001 error for a named priority queue.
func NewQueueFullError(queue string) error {
	return &CoreError{Code: CodeQueueFull, Message: "queue full: " + queue}
}

// NewTimeoutError builds a CORE-002 error wrapping the underlying cause.
func NewTimeoutError(err error) error {
	return &CoreError{Code: CodeTimeout, Message: "operation timed out", Err: err}
}

// NewCancelledError builds a CORE-003 error.
func NewCancelledError() error {
	return &CoreError{Code: CodeCancelled, Message: "operation was cancelled"}
}

// NewProviderUnavailableError builds a CORE-004 error for a named provider.
func NewProviderUnavailableError(provider string, err error) error {
	return &CoreError{Code: CodeProviderUnavailable, Message: "provider unavailable: " + provider, Err: err}
}

// NewProviderFailureError builds a CORE-005 error for a named provider.
func NewProviderFailureError(provider string, err error) error {
	return &CoreError{Code: CodeProviderFailure, Message: "provider operation failed: " + provider, Err: err}
}

// NewSerializationError builds a CORE-006 error.
func NewSerializationError(err error) error {
	return &CoreError{Code: CodeSerializationError, Message: "serialization failed", Err: err}
}

// NewSubscriberCallbackError builds a CORE-007 error for a named subscriber.
func NewSubscriberCallbackError(subscriberID string, err error) error {
	return &CoreError{Code: CodeSubscriberCallbackError, Message: "subscriber callback failed: " + subscriberID, Err: err}
}

// NewValidationError builds a CORE-008 error with a field-level detail message.
func NewValidationError(detail string) error {
	return &CoreError{Code: CodeValidationError, Message: "validation failed: " + detail}
}
