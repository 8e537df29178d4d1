package planner

import "fmt"

// ErrorKind is the machine-readable plan failure class.
type ErrorKind string

const (
	ErrKindInvalidRequest ErrorKind = "invalid_request"
	ErrKindNoCandidates   ErrorKind = "no_candidates"
	ErrKindBudgetExceeded ErrorKind = "budget_exceeded"
	ErrKindCircuitOpen    ErrorKind = "circuit_open"
	ErrKindInternal       ErrorKind = "internal"
)

// PlanError is the typed failure returned by plan generation. Handlers map
// Kind to an HTTP status.
type PlanError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plan error (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("plan error (%s): %s", e.Kind, e.Message)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError builds a PlanError wrapping cause.
func NewPlanError(kind ErrorKind, message string, cause error) *PlanError {
	return &PlanError{Kind: kind, Message: message, Err: cause}
}

// ErrInvalidRequest reports a request validation failure.
type ErrInvalidRequest struct {
	Field  string
	Reason string
}

func (e ErrInvalidRequest) Error() string {
	return fmt.Sprintf("invalid request: field %s: %s", e.Field, e.Reason)
}
