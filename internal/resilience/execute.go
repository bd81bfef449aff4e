package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
)

// Operation is the protected call. It must honour ctx cancellation for the
// timeout to free its resources.
type Operation func(ctx context.Context) (any, error)

// Fallback produces a substitute result. cause is the *CircuitError that
// prevented the operation's own result from being returned.
type Fallback func(ctx context.Context, cause error) (any, error)

type outcome struct {
	value    any
	err      error
	timedOut bool
}

// Execute runs op under the circuit for service. A rejected call never
// invokes op. When op fails, times out or is rejected, fb is invoked if
// present and its result returned; otherwise a *CircuitError is returned.
// A failing fallback yields a *FallbackError.
func (m *Manager) Execute(ctx context.Context, service string, op Operation, fb Fallback) (any, error) {
	if service == "" {
		return nil, ErrInvalidServiceName
	}
	if op == nil {
		return nil, ErrNilOperation
	}

	cb := m.circuit(service)
	requestID := m.newID()

	if !cb.Begin(requestID) {
		m.global.Rejection()
		m.logger.Debug("Request rejected",
			slog.String("service", service),
			slog.String("request_id", requestID))
		return m.fallback(ctx, cb, fb, circuitOpenError(service))
	}
	m.global.Request()

	timeout := cb.Settings().Timeout
	result := run(ctx, timeout, op)
	if result.err == nil && !result.timedOut {
		cb.RecordSuccess(requestID)
		return result.value, nil
	}

	var cause *CircuitError
	if result.timedOut {
		cause = timeoutError(service, timeout.String())
	} else {
		cause = operationError(service, result.err)
	}

	if cb.RecordFailure(requestID, cause, result.timedOut) {
		m.global.Failure()
		if result.timedOut {
			m.global.Timeout()
		}
	}

	m.logger.Debug("Request failed",
		slog.String("service", service),
		slog.String("request_id", requestID),
		slog.String("kind", string(cause.Kind)),
		slog.String("error", cause.Message))

	return m.fallback(ctx, cb, fb, cause)
}

func (m *Manager) fallback(ctx context.Context, cb *circuitbreaker.CircuitBreaker, fb Fallback, cause *CircuitError) (any, error) {
	if fb == nil {
		return nil, cause
	}

	cb.RecordFallback()
	m.global.Fallback()

	value, err := fb(ctx, cause)
	if err != nil {
		m.logger.Warn("Fallback failed",
			slog.String("service", cb.Name()),
			slog.String("cause", string(cause.Kind)),
			slog.String("error", err.Error()))
		return nil, &FallbackError{Service: cb.Name(), Cause: cause, Err: err}
	}
	return value, nil
}

// run races op against its deadline. The goroutine running op is left to
// finish on its own after a timeout; its result is discarded.
func run(ctx context.Context, timeout time.Duration, op Operation) outcome {
	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		// The operation may observe its own deadline first and return it.
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil && opCtx.Err() != nil {
			return outcome{timedOut: true}
		}
		return o
	case <-opCtx.Done():
		if err := ctx.Err(); err != nil {
			return outcome{err: err}
		}
		return outcome{timedOut: true}
	}
}

// Do is the typed form of Execute.
func Do[T any](
	ctx context.Context,
	m *Manager,
	service string,
	op func(context.Context) (T, error),
	fb func(context.Context, error) (T, error),
) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}

	var fallback Fallback
	if fb != nil {
		fallback = func(ctx context.Context, cause error) (any, error) {
			return fb(ctx, cause)
		}
	}

	value, err := m.Execute(ctx, service, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, fallback)
	if err != nil {
		return zero, err
	}

	typed, _ := value.(T)
	return typed, nil
}
