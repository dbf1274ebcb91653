package executor

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/tabpilot/internal/script"
)

// ErrWaitTimeout is returned when a wait step's condition never held.
var ErrWaitTimeout = errors.New("wait timed out")

// StepTypeError is returned for a step type with no handler.
type StepTypeError struct {
	Type script.StepType
}

func (e *StepTypeError) Error() string {
	return fmt.Sprintf("unknown step type %q", e.Type)
}

// ConditionEvaluationError is returned when a step condition fails to
// compile, fails to evaluate, or yields a non-bool.
type ConditionEvaluationError struct {
	Expr string
	Err  error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Expr, e.Err)
}

func (e *ConditionEvaluationError) Unwrap() error { return e.Err }

// StepError reports which step of a run failed. Index is the position in
// the top-level step list; Path also locates steps inside loops, e.g.
// "2.loop[1].0".
type StepError struct {
	Index int
	Path  string
	Type  script.StepType
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.Path, e.Type, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SubstitutionWarning records a {{placeholder}} with no matching parameter.
// It is never returned as a failure.
type SubstitutionWarning struct {
	Step        string
	Field       string
	Placeholder string
}

func (w SubstitutionWarning) Error() string {
	return fmt.Sprintf("step %s: %s has no value for {{%s}}", w.Step, w.Field, w.Placeholder)
}
