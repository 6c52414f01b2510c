package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

func TestBuildFunction_MapsSignature(t *testing.T) {
	ctx := testContext(t, testProgram(ir.Function{Name: "f", Params: 2, Returns: true}))
	gen := buildGen(t, ctx, "f")

	for _, v := range []ir.ValueRef{ir.FuncRef("f"), ir.ArgRef("f", 0), ir.ArgRef("f", 1), ir.ReturnRef("f")} {
		co, ok := gen.V2N[v]
		require.True(t, ok, v.String())
		contra, ok := gen.V2NContra[v]
		require.True(t, ok, v.String())
		assert.Equal(t, contra, gen.CG.Dual(co))
	}
	assert.Equal(t, lookup(t, gen, "f.in_1"), gen.V2N[ir.ArgRef("f", 1)])
	assert.Equal(t, lookup(t, gen, "f.out"), gen.V2N[ir.ReturnRef("f")])
}

func TestBuildFunction_LocalsAreScoped(t *testing.T) {
	ctx := testContext(t, testProgram(
		ir.Function{Name: "f", Constraints: []string{"x.load32 <= #int"}, Values: []ir.Value{{ID: "x", Var: "x"}}},
		ir.Function{Name: "g", Constraints: []string{"#int <= x"}, Values: []ir.Value{{ID: "x", Var: "x"}}},
	))
	gen := buildGen(t, ctx, "f", "g")

	fx, gx := local(gen, "f", "x"), local(gen, "g", "x")
	require.NotEqual(t, graph.NoNode, fx)
	require.NotEqual(t, graph.NoNode, gx)
	assert.NotEqual(t, fx, gx)
	assert.Equal(t, fx, gen.V2N[ir.LocalRef("f", "x")])
	assert.Equal(t, gx, gen.V2N[ir.LocalRef("g", "x")])
	assert.NotEqual(t, graph.NoNode, local(gen, "f", "x", schema.Load(32)))
}

func TestBuildFunction_Cells(t *testing.T) {
	ctx := testContext(t, testProgram(storeCallee()))
	gen := buildGen(t, ctx, "callee")

	p := local(gen, "callee", "p")
	require.NotEqual(t, graph.NoNode, p)
	assert.Equal(t, pni.Pointer, gen.CG.Cell(p).Kind)
	assert.Equal(t, pni.Pointer, gen.CG.Cell(gen.V2N[ir.ArgRef("callee", 0)]).Kind,
		"the parameter flows into p and shares its cell")
}

func TestBuildFunction_PointerArithmetic(t *testing.T) {
	ctx := testContext(t, testProgram(ir.Function{
		Name:      "f",
		Constants: []ir.Constant{{Var: "four", Value: 4}},
		Arith:     []ir.Arith{{Op: ir.OpAdd, Left: "p", Right: "four", Result: "r"}},
		Cells:     map[string]string{"p": "ptr"},
	}))
	gen := buildGen(t, ctx, "f")

	p, r := local(gen, "f", "p"), local(gen, "f", "r")
	require.NotEqual(t, graph.NoNode, r)
	assert.True(t, gen.CG.HasEdge(p, r, graph.Recall(schema.ConstOffset(4))))
	assert.Equal(t, pni.Pointer, gen.CG.Cell(r).Kind)
}

func TestBuildFunction_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   ir.Function
		code AnalysisErrorCode
	}{
		{"bad constraint", ir.Function{Name: "f", Constraints: []string{"not a constraint"}}, ErrCodeBadConstraint},
		{"bad cell", ir.Function{Name: "f", Cells: map[string]string{"p": "ptr 12x"}}, ErrCodeBadCell},
		{"bad arith op", ir.Function{Name: "f", Arith: []ir.Arith{{Op: "mul", Left: "a", Right: "b", Result: "c"}}}, ErrCodeBadConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t, testProgram(tt.fn))
			gen := ctx.NewGenerator("f", []string{"f"})
			err := gen.BuildFunction(&tt.fn)

			var ae *AnalysisError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.code, ae.Code)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestBuildFunction_Calls(t *testing.T) {
	caller := storeCaller()
	caller.Calls = append(caller.Calls,
		ir.Call{ID: "c1", Args: []string{"q"}},
		ir.Call{ID: "c2", Callee: "nope"},
	)
	ctx := testContext(t, testProgram(storeCallee(), caller))
	gen := buildGen(t, ctx, "main")

	pair, ok := gen.CallToInstance["main/c0"]
	require.True(t, ok)
	assert.Equal(t, "callee", gen.CallTargets["main/c0"])
	assert.Equal(t, pair.Contra, gen.CG.Dual(pair.Co))
	assert.NotZero(t, gen.CG.Node(pair.Co).Key.Var.Base().Instance)

	assert.Equal(t, []ir.UnhandledCall{
		{Caller: "main", Call: "main/c1", Reason: "indirect call"},
		{Caller: "main", Call: "main/c2", Callee: "nope", Reason: "unknown callee"},
	}, gen.UnhandledCalls)
	assert.Equal(t, []string{"main/c0"}, gen.Calls())
}

func TestBuildFunction_CallInsideUnitIsDirect(t *testing.T) {
	ctx := testContext(t, testProgram(storeCallee(), storeCaller()))
	gen := buildGen(t, ctx, "callee", "main")

	assert.Empty(t, gen.CallToInstance)
	q := local(gen, "main", "q")
	assert.True(t, gen.CG.HasEdge(q, lookup(t, gen, "callee.in_0"), graph.One()))
}

func TestBuildFunction_DeclarationHasNoBody(t *testing.T) {
	ctx := testContext(t, testProgram(ir.Function{
		Name:        "ext",
		Declaration: true,
		Params:      1,
		Constraints: []string{"ext.in_0 <= x"},
	}))
	gen := buildGen(t, ctx, "ext")

	assert.Contains(t, gen.V2N, ir.ArgRef("ext", 0))
	assert.Equal(t, graph.NoNode, local(gen, "ext", "x"))
}
