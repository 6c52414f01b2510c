package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/pni"
)

func TestFormatDirectives(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"hello", ""},
		{"%d %s", "ds"},
		{"%5.2f%%", "f"},
		{"%lu and %-08llx", "ux"},
		{"%c%e%g%i", "cegi"},
		{"trailing %", ""},
		{"%%d", ""},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, string(formatDirectives(tt.format)))
		})
	}
}

func TestPrintfSummary(t *testing.T) {
	ctx := testContext(t, testProgram(ir.Function{Name: "log_msg", Declaration: true, VarArg: true, Params: 1}))
	gen, err := PrintfSummary(ctx, "log_msg", "%d: %s")
	require.NoError(t, err)
	require.NotNil(t, gen)
	assert.Equal(t, []string{"log_msg"}, gen.Funcs)

	cell := func(v ir.ValueRef) pni.Cell {
		t.Helper()
		id, ok := gen.V2N[v]
		require.True(t, ok, v.String())
		return gen.CG.Cell(id)
	}
	assert.Equal(t, pni.Pointer, cell(ir.ArgRef("log_msg", 0)).Kind, "format string")
	assert.Equal(t, pni.Number, cell(ir.ArgRef("log_msg", 1)).Kind)
	assert.Equal(t, uint32(32), cell(ir.ArgRef("log_msg", 1)).Size)
	assert.Equal(t, pni.Pointer, cell(ir.ArgRef("log_msg", 2)).Kind)
	assert.Equal(t, pni.Number, cell(ir.ReturnRef("log_msg")).Kind)
}

func TestPrintfSummary_UnknownDirective(t *testing.T) {
	ctx := testContext(t, testProgram(ir.Function{Name: "printf", Declaration: true, VarArg: true, Params: 1}))
	gen, err := PrintfSummary(ctx, "printf", "%q %f")
	require.NoError(t, err)

	assert.NotContains(t, gen.V2N, ir.ArgRef("printf", 1), "unknown directives stay unconstrained")
	id, ok := gen.V2N[ir.ArgRef("printf", 2)]
	require.True(t, ok)
	c := gen.CG.Cell(id)
	assert.Equal(t, "float", c.Elem)
	assert.Equal(t, uint32(64), c.Size)
}
