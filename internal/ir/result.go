package ir

// Result is the outcome of one analysis run.
type Result struct {
	RunID       string `json:"run_id,omitempty"`
	ProgramHash string `json:"program_hash"`

	Values []ValueType `json:"values"`

	// Memory is the C type recovered for the emulated linear memory.
	Memory string `json:"memory,omitempty"`

	// Declarations are the struct and union definitions the value types
	// refer to, in dependency order.
	Declarations []string `json:"declarations,omitempty"`

	Unhandled   []UnhandledCall `json:"unhandled,omitempty"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
}

// ValueType is the recovered type of one value. Upper is the type seen by
// users of the value (covariant side), Lower the type it is defined with
// (contravariant side). Size is the width of the value in bytes, zero
// when unknown.
type ValueType struct {
	Value string `json:"value"`
	Upper string `json:"upper"`
	Lower string `json:"lower,omitempty"`
	Size  uint32 `json:"size"`
}

// UnhandledCall is a call the engine could not connect to a summary.
type UnhandledCall struct {
	Caller string `json:"caller"`
	Call   string `json:"call"`
	Callee string `json:"callee,omitempty"`
	Reason string `json:"reason"`
}

// Diagnostic severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Diagnostic is a problem found during analysis that did not stop it.
type Diagnostic struct {
	Severity string `json:"severity"`
	Function string `json:"function,omitempty"`
	Message  string `json:"message"`
}

// Value returns the type of the value with the given ref text.
func (r *Result) Value(ref string) (ValueType, bool) {
	for _, v := range r.Values {
		if v.Value == ref {
			return v, true
		}
	}
	return ValueType{}, false
}
