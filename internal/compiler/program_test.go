package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

const sampleCUE = `
pointer_size: 32
functions: [{
	name:   "callee"
	params: 1
	constraints: ["callee.in_0 <= p", "p.store32 <= #int"]
}, {
	name:    "main"
	returns: true
	values: [{id: "x", var: "x"}]
	calls: [{id: "c1", callee: "callee", args: ["x"]}]
	arith: [{op: "add", left: "x", right: "four", result: "y"}]
	constants: [{var: "four", value: 4}]
	cells: {"x": "ptr"}
}]
`

func TestCompileProgramBytes_CUE(t *testing.T) {
	p, err := CompileProgramBytes([]byte(sampleCUE), "sample.cue")
	require.NoError(t, err)
	require.Len(t, p.Functions, 2)

	main := p.Functions[1]
	assert.Equal(t, "main", main.Name)
	assert.True(t, main.Returns)
	assert.Equal(t, []ir.Call{{ID: "c1", Callee: "callee", Args: []string{"x"}}}, main.Calls)
	assert.Equal(t, []ir.Constant{{Var: "four", Value: 4}}, main.Constants)
	assert.Equal(t, "ptr", main.Cells["x"])
	assert.Equal(t, uint32(32), p.Pointer())
}

func TestCompileProgramBytes_JSON(t *testing.T) {
	src := `{"functions": [{"name": "f", "params": 2, "constraints": ["f.in_0 <= f.in_1"]}]}`
	p, err := CompileProgramBytes([]byte(src), "f.json")
	require.NoError(t, err)
	require.Len(t, p.Functions, 1)
	assert.Equal(t, 2, p.Functions[0].Params)
	assert.Equal(t, uint32(ir.DefaultPointerSize), p.Pointer())
}

func TestCompileProgramBytes_WrappedInProgramField(t *testing.T) {
	src := `program: functions: [{name: "f"}]`
	p, err := CompileProgramBytes([]byte(src), "wrapped.cue")
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, p.FunctionNames())
}

func TestCompileProgramBytes_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad op", `functions: [{name: "f", arith: [{op: "mul", left: "a", right: "b", result: "c"}]}]`},
		{"unknown field", `functions: [{name: "f", bogus: 1}]`},
		{"empty name", `functions: [{name: ""}]`},
		{"bad pointer size", `pointer_size: 48, functions: []`},
		{"syntax", `functions: [{name: "f"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileProgramBytes([]byte(tt.src), tt.name+".cue")
			assert.Error(t, err)
		})
	}
}

func TestLoadProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.cue")
	require.NoError(t, os.WriteFile(path, []byte(sampleCUE), 0o644))

	p, err := LoadProgram(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"callee", "main"}, p.FunctionNames())

	_, err = LoadProgram(filepath.Join(dir, "prog.yaml"))
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)

	_, err = LoadProgram(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
