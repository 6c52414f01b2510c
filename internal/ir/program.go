package ir

import "slices"

// DefaultPointerSize is the pointer width in bits of programs that do not
// set one.
const DefaultPointerSize = 32

// Program is the declarative description of a lifted module: one entry per
// function with the subtype constraints, arithmetic and calls its body
// produces.
type Program struct {
	PointerSize uint32     `json:"pointer_size,omitempty"`
	Functions   []Function `json:"functions"`
}

// Function describes one function.
//
// Variable names in Constraints, Arith, Calls, Cells and Constants are type
// variable texts. A bare name that is not a function of the program is a
// local of this function and is kept apart from locals of the same name in
// other functions.
type Function struct {
	Name string `json:"name"`

	// Declaration marks a function without a body.
	Declaration bool `json:"declaration,omitempty"`

	// Intrinsic marks compiler intrinsics, which are never analysed.
	Intrinsic bool `json:"intrinsic,omitempty"`

	// Polymorphic functions keep their own SCC so every caller gets a
	// fresh instance of their summary.
	Polymorphic bool `json:"polymorphic,omitempty"`

	VarArg  bool `json:"vararg,omitempty"`
	Params  int  `json:"params,omitempty"`
	Returns bool `json:"returns,omitempty"`

	Values      []Value           `json:"values,omitempty"`
	Constraints []string          `json:"constraints,omitempty"`
	Arith       []Arith           `json:"arith,omitempty"`
	Calls       []Call            `json:"calls,omitempty"`
	Cells       map[string]string `json:"cells,omitempty"`
	Constants   []Constant        `json:"constants,omitempty"`
}

// Value names a variable whose type is reported in the result.
type Value struct {
	ID  string `json:"id"`
	Var string `json:"var"`
}

// Arith is `result = left op right` with op "add" or "sub".
type Arith struct {
	Op     string `json:"op"`
	Left   string `json:"left"`
	Right  string `json:"right"`
	Result string `json:"result"`
}

// Arithmetic operators.
const (
	OpAdd = "add"
	OpSub = "sub"
)

// Call is a call site. An empty Callee is an indirect call.
//
// Format is the constant format string passed to a printf-like callee.
// When set, the call gets a summary built from the format directives
// instead of the callee's own.
type Call struct {
	ID     string   `json:"id"`
	Callee string   `json:"callee,omitempty"`
	Args   []string `json:"args,omitempty"`
	Result string   `json:"result,omitempty"`
	Format string   `json:"format,omitempty"`
}

// Constant binds a variable to an integer constant.
type Constant struct {
	Var   string `json:"var"`
	Value int64  `json:"value"`
}

// Pointer returns the pointer size, defaulting when unset.
func (p *Program) Pointer() uint32 {
	if p.PointerSize == 0 {
		return DefaultPointerSize
	}
	return p.PointerSize
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*Function, bool) {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}

// FunctionNames returns the function names in declaration order.
func (p *Program) FunctionNames() []string {
	names := make([]string, len(p.Functions))
	for i, f := range p.Functions {
		names[i] = f.Name
	}
	return names
}

// IsFunction reports whether name is a function of the program.
func (p *Program) IsFunction(name string) bool {
	return slices.ContainsFunc(p.Functions, func(f Function) bool { return f.Name == name })
}
