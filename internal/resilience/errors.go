package resilience

import (
	"errors"
	"fmt"
)

// Kind classifies why Execute did not return the operation's own result.
type Kind string

const (
	KindCircuitOpen    Kind = "CIRCUIT_OPEN"
	KindTimeout        Kind = "TIMEOUT"
	KindOperationError Kind = "OPERATION_ERROR"
	KindFallbackError  Kind = "FALLBACK_ERROR"
)

var (
	ErrCircuitOpen        = errors.New("circuit open")
	ErrTimeout            = errors.New("operation timed out")
	ErrCircuitNotFound    = errors.New("circuit not found")
	ErrInvalidServiceName = errors.New("service name must not be empty")
	ErrNilOperation       = errors.New("operation must not be nil")
)

// CircuitError is returned by Execute when no fallback was given.
// Err is the operation's error for OPERATION_ERROR, and ErrCircuitOpen or
// ErrTimeout for the other kinds.
type CircuitError struct {
	Kind    Kind
	Service string
	Message string
	Err     error
}

func (e *CircuitError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Service, e.Kind, e.Message)
}

func (e *CircuitError) Unwrap() error {
	return e.Err
}

// ErrorKind lets the circuit's failure log record the kind instead of the Go type.
func (e *CircuitError) ErrorKind() string {
	return string(e.Kind)
}

// FallbackError reports that the fallback itself failed. Cause is the error
// that triggered the fallback; Err is what the fallback returned.
type FallbackError struct {
	Service string
	Cause   error
	Err     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s [%s]: fallback failed: %v (after: %v)", e.Service, KindFallbackError, e.Err, e.Cause)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind carried by err, or "" when err did not come from
// Execute.
func KindOf(err error) Kind {
	var fe *FallbackError
	if errors.As(err, &fe) {
		return KindFallbackError
	}
	var ce *CircuitError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func circuitOpenError(service string) *CircuitError {
	return &CircuitError{
		Kind:    KindCircuitOpen,
		Service: service,
		Message: "circuit is open, request rejected",
		Err:     ErrCircuitOpen,
	}
}

func timeoutError(service, timeout string) *CircuitError {
	return &CircuitError{
		Kind:    KindTimeout,
		Service: service,
		Message: "operation exceeded " + timeout,
		Err:     ErrTimeout,
	}
}

func operationError(service string, err error) *CircuitError {
	return &CircuitError{
		Kind:    KindOperationError,
		Service: service,
		Message: err.Error(),
		Err:     err,
	}
}
