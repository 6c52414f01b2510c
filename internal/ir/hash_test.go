package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgram() *Program {
	return &Program{
		PointerSize: 32,
		Functions: []Function{
			{Name: "callee", Params: 1, Constraints: []string{"callee.in_0.store32 <= #int"}},
			{Name: "main", Calls: []Call{{ID: "c1", Callee: "callee", Args: []string{"p"}}}},
		},
	}
}

func TestProgramHashDeterminism(t *testing.T) {
	h1, err := ProgramHash(sampleProgram())
	require.NoError(t, err)
	h2, err := ProgramHash(sampleProgram())
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "ProgramHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestProgramHashChangesWithInput(t *testing.T) {
	p := sampleProgram()
	before := MustProgramHash(p)
	p.Functions[0].Constraints[0] = "callee.in_0.store32 <= #char"
	assert.NotEqual(t, before, MustProgramHash(p))
}

func TestProgramHashIgnoresCellOrder(t *testing.T) {
	a := sampleProgram()
	a.Functions[1].Cells = map[string]string{"p": "ptr", "q": "int 32"}
	b := sampleProgram()
	b.Functions[1].Cells = map[string]string{"q": "int 32", "p": "ptr"}
	assert.Equal(t, MustProgramHash(a), MustProgramHash(b))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"name":"f"}`)
	assert.NotEqual(t, hashWithDomain(DomainProgram, data), hashWithDomain(DomainFunction, data))
}

func TestFunctionHashDependsOnPointerSize(t *testing.T) {
	f := &sampleProgram().Functions[0]
	h32, err := FunctionHash(f, 32)
	require.NoError(t, err)
	h64, err := FunctionHash(f, 64)
	require.NoError(t, err)
	assert.NotEqual(t, h32, h64)
}

func TestSummaryKey(t *testing.T) {
	k1, err := SummaryKey([]string{"a", "b"}, nil)
	require.NoError(t, err)
	k2, err := SummaryKey([]string{"a", "b"}, []string{"c"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "callee summaries are part of the key")
}
