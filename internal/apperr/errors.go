// Package apperr defines the failure taxonomy shared across the core.
//
// Nothing here is fatal: command paths treat these as signals to degrade to a
// no-op, substitute a default, or surface an informational notification.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the core's failure modes.
var (
	// ErrMalformedData marks persisted payloads that failed to decode.
	// Recovered locally by substituting the compiled-in default.
	ErrMalformedData = errors.New("malformed persisted data")

	// ErrInvalidTransition marks a lifecycle command that is not legal in the
	// entity's current state. The command becomes a no-op.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound marks an action against an entity that no longer exists
	// (e.g. approving an offer on a vanished broadcast) or a registry miss.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an optimistic-concurrency failure: the caller's
	// version token no longer matches the stored entity.
	ErrConflict = errors.New("version conflict")

	// ErrUnavailable marks an external service failure (transport or 5xx).
	ErrUnavailable = errors.New("service unavailable")

	// ErrAuth marks an authentication/key failure on an external service,
	// kept distinct from ErrUnavailable so callers can prompt re-auth.
	ErrAuth = errors.New("authentication failed")
)

// ServiceError carries details of an external API failure.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError wraps an external API failure in the taxonomy.
// 401/403 map to ErrAuth, everything else to ErrUnavailable.
func NewServiceError(service string, statusCode int, message string) *ServiceError {
	kind := ErrUnavailable
	if statusCode == 401 || statusCode == 403 {
		kind = ErrAuth
	}
	return &ServiceError{Service: service, StatusCode: statusCode, Message: message, Err: kind}
}

// IsRetryable reports whether the error is likely transient.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		switch se.StatusCode {
		// Status 0 is a transport-level failure (no response at all).
		case 0, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrAuth)
}
