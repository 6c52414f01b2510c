package testutil

import "github.com/NotDec/NotDec-sub000/internal/ir"

// StoreThroughParamProgram is a callee storing an int through its only
// parameter and a caller passing it a local. The parameter is recovered
// as int32_t *.
func StoreThroughParamProgram() *ir.Program {
	return &ir.Program{
		PointerSize: 32,
		Functions: []ir.Function{
			{
				Name:   "callee",
				Params: 1,
				Constraints: []string{
					"callee.in_0 <= p",
					"#int <= p.store32",
				},
				Cells:  map[string]string{"p": "ptr"},
				Values: []ir.Value{{ID: "p", Var: "p"}},
			},
			{
				Name:   "main",
				Values: []ir.Value{{ID: "q", Var: "q"}},
				Calls:  []ir.Call{{ID: "c0", Callee: "callee", Args: []string{"q"}}},
			},
		},
	}
}

// StoreThroughParamCUE is StoreThroughParamProgram in CUE.
const StoreThroughParamCUE = `
pointer_size: 32
functions: [{
	name:   "callee"
	params: 1
	constraints: ["callee.in_0 <= p", "#int <= p.store32"]
	cells: p: "ptr"
	values: [{id: "p", var: "p"}]
}, {
	name: "main"
	values: [{id: "q", var: "q"}]
	calls: [{id: "c0", callee: "callee", args: ["q"]}]
}]
`

// IndirectCallProgram has one indirect call, reported as unhandled.
func IndirectCallProgram() *ir.Program {
	return &ir.Program{
		PointerSize: 32,
		Functions: []ir.Function{{
			Name:  "main",
			Calls: []ir.Call{{ID: "c1", Args: []string{"x"}}},
		}},
	}
}

// IndirectCallJSON is IndirectCallProgram in JSON.
const IndirectCallJSON = `{
  "pointer_size": 32,
  "functions": [
    {"name": "main", "calls": [{"id": "c1", "args": ["x"]}]}
  ]
}`
