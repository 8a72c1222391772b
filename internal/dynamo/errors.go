package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for integration.
var (
	// ErrInvalidState indicates a state or derivative holding NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrEmptyState indicates a zero-length state vector.
	ErrEmptyState = errors.New("dynamo: empty state vector")

	// ErrDimensionMismatch indicates state and derivative lengths differ.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and derivative")

	// ErrInvalidTolerance indicates a non-positive or non-finite tolerance.
	ErrInvalidTolerance = errors.New("dynamo: tolerance must be positive and finite")

	// ErrInvalidStep indicates a zero or non-finite trial step.
	ErrInvalidStep = errors.New("dynamo: step size must be non-zero and finite")

	// ErrStepUnderflow indicates the adaptive step shrank until t+h == t,
	// or the shrink loop exhausted its retry budget.
	ErrStepUnderflow = errors.New("dynamo: step size underflow")

	// ErrUnknownParam indicates a parameter name the system does not have.
	ErrUnknownParam = errors.New("dynamo: unknown parameter")
)

// StepError wraps an integrator failure with the point where it happened.
type StepError struct {
	T       float64
	H       float64
	Shrinks int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v at t=%g (h=%g after %d shrinks)", e.Err, e.T, e.H, e.Shrinks)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// SimulationError wraps an error with driving-loop context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
