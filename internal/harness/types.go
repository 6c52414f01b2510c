package harness

import "github.com/NotDec/NotDec-sub000/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run behaved as expected and all assertions hold.
	Pass bool `json:"pass"`

	// Types is the engine result. Nil when the run failed as expected.
	Types *ir.Result `json:"types,omitempty"`

	// ErrorCode is the analysis error code of a failed run.
	ErrorCode string `json:"error_code,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
