package engine

import (
	"errors"
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// AnalysisError is an error that aborts the analysis of a module.
//
// Analysis errors include:
//   - Invariant violations found by a graph pass, wrapped with the SCC
//   - Malformed constraint or cell text in the program or an override
//   - Unreadable override files
//
// Soft gaps such as indirect calls are not errors; they are recorded in
// the result as unhandled calls.
type AnalysisError struct {
	// Code identifies the error category.
	Code AnalysisErrorCode

	// Message is a human-readable description.
	Message string

	// SCC names the unit being analysed, functions joined with ','.
	SCC string

	// Phase is the driver phase: bottom-up, top-down, global or layout.
	Phase string

	Err error
}

// AnalysisErrorCode categorizes analysis errors.
type AnalysisErrorCode string

const (
	// ErrCodeInvariant wraps a *graph.InvariantError.
	ErrCodeInvariant AnalysisErrorCode = "INVARIANT"

	// ErrCodeBadConstraint indicates constraint text that does not parse.
	ErrCodeBadConstraint AnalysisErrorCode = "BAD_CONSTRAINT"

	// ErrCodeBadCell indicates a lattice cell text that does not parse.
	ErrCodeBadCell AnalysisErrorCode = "BAD_CELL"

	// ErrCodeOverride indicates an override file that cannot be used.
	ErrCodeOverride AnalysisErrorCode = "BAD_OVERRIDE"

	// ErrCodeInvalidProgram indicates a program that fails validation.
	ErrCodeInvalidProgram AnalysisErrorCode = "INVALID_PROGRAM"

	// ErrCodeBudget indicates a strict saturation budget ran out.
	ErrCodeBudget AnalysisErrorCode = "BUDGET_EXCEEDED"
)

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Phase != "" && e.SCC != "" {
		msg = fmt.Sprintf("%s (phase=%s, scc=%s)", msg, e.Phase, e.SCC)
	} else if e.SCC != "" {
		msg = fmt.Sprintf("%s (scc=%s)", msg, e.SCC)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsInvariantError reports whether err carries a graph invariant
// violation. Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Code == ErrCodeInvariant {
		return true
	}
	return graph.IsInvariantError(err)
}

// IsBudgetError reports whether err comes from an exhausted saturation
// budget.
func IsBudgetError(err error) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Code == ErrCodeBudget {
		return true
	}
	return graph.IsBudgetExceededError(err)
}

// IsInputError reports whether err is caused by malformed input rather
// than by the engine.
func IsInputError(err error) bool {
	var ae *AnalysisError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case ErrCodeBadConstraint, ErrCodeBadCell, ErrCodeOverride, ErrCodeInvalidProgram:
		return true
	}
	return false
}

// wrapPhase attaches the SCC and phase to err, classifying graph errors.
func wrapPhase(err error, scc, phase string) error {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		if ae.SCC == "" {
			ae.SCC = scc
		}
		if ae.Phase == "" {
			ae.Phase = phase
		}
		return ae
	}
	code := ErrCodeInvariant
	msg := "graph invariant violated"
	if graph.IsBudgetExceededError(err) {
		code = ErrCodeBudget
		msg = "saturation budget exceeded"
	}
	return &AnalysisError{Code: code, Message: msg, SCC: scc, Phase: phase, Err: err}
}
