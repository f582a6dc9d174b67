package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInputMismatch indicates missing, empty or misaligned forcing, or a
	// timestep that was never set.
	ErrInputMismatch = errors.New("dynamo: input mismatch")

	// ErrInvalidParameter indicates a missing parameter or a value outside
	// the domain of the flux law.
	ErrInvalidParameter = errors.New("dynamo: invalid parameter")

	// ErrNonConvergence indicates the root finder exhausted its iteration
	// budget. Only returned when the solver runs in strict mode.
	ErrNonConvergence = errors.New("dynamo: root finding did not converge")

	// ErrStateOrdering indicates a result was requested before the solve
	// that produces it.
	ErrStateOrdering = errors.New("dynamo: no solution for current configuration")

	// ErrNoBracket indicates the residual has the same sign at both ends of
	// the search interval.
	ErrNoBracket = errors.New("dynamo: root not bracketed")

	// ErrUnknownNode indicates a reference to a node or port that does not exist.
	ErrUnknownNode = errors.New("dynamo: unknown node")

	// ErrCycle indicates a network whose routing is not acyclic.
	ErrCycle = errors.New("dynamo: routing contains a cycle")
)

// StepError wraps an error with the element and timestep it occurred at.
type StepError struct {
	Element string
	Step    int
	State   float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (S=%.6g): %v", e.Element, e.Step, e.State, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
