package flowgate

import (
	"errors"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------.

type (
	// TransportError is a network-level fault (connection reset, timeout,
	// DNS failure) raised before any HTTP response was received. Transport
	// errors are always considered retryable.
	TransportError struct {
		// Op names the failed phase, e.g. "dial" or "read".
		Op string
		// Err is the underlying network error.
		Err error
	}

	// StatusError is returned when a response was received with a non-2xx
	// status. Whether it is retried depends on the configured
	// retryable status codes.
	StatusError struct {
		// Body is the raw response body, useful for API error payloads.
		Body []byte
		// StatusCode is the HTTP status of the response.
		StatusCode int
	}

	// RecoveryError is raised when the primary operation and every
	// registered fallback strategy failed.
	RecoveryError struct {
		// LastErr is the error from the last strategy attempted (or the
		// primary, when no strategy was registered).
		LastErr error
		// Operation is the logical operation name.
		Operation string
		// StrategiesTried is the number of fallback strategies attempted.
		StrategiesTried int
	}

	// permanentError marks a wrapped error as non-retryable regardless of
	// its classification.
	permanentError struct {
		err error
	}

	// gateError is the concrete type backing all sentinel errors.
	gateError string
)

// Sentinel errors produced by the resilience layer itself.
var (
	// ErrCircuitOpen is returned when the breaker fast-fails a call
	// without attempting it.
	ErrCircuitOpen error = gateError("circuit breaker is open")
	// ErrPoolTimeout is returned when a pool slot could not be acquired
	// within the configured acquisition timeout.
	ErrPoolTimeout error = gateError("connection pool acquisition timed out")
	// ErrRetriesExhausted wraps the last attempt's error once all retry
	// attempts have been used.
	ErrRetriesExhausted error = gateError("retries exhausted")
)

func (e gateError) Error() string { return string(e) }

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.StatusCode)
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf(
		"operation %q failed after %d fallback strategies: %v",
		e.Operation, e.StrategiesTried, e.LastErr,
	)
}

// Unwrap returns the last underlying error.
func (e *RecoveryError) Unwrap() error { return e.LastErr }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err to mark it as non-retryable, overriding the default
// classification. Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was explicitly marked with [Permanent].
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError

	return errors.As(err, &pe)
}
