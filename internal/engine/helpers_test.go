package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testProgram(funcs ...ir.Function) *ir.Program {
	return &ir.Program{PointerSize: 32, Functions: funcs}
}

func testContext(t *testing.T, p *ir.Program) *Context {
	t.Helper()
	return NewContext(p, DefaultConfig(), discard)
}

// buildGen builds and saturates a generator over the named functions.
func buildGen(t *testing.T, ctx *Context, funcs ...string) *Generator {
	t.Helper()
	gen := ctx.NewGenerator(ir.JoinFuncNames(funcs), funcs)
	for _, name := range funcs {
		f, ok := ctx.Program.Function(name)
		require.True(t, ok, name)
		require.NoError(t, gen.BuildFunction(f))
	}
	require.NoError(t, gen.CG.Saturate(ctx.Config.saturateOptions()))
	return gen
}

// lookup returns the covariant node of the variable text, or NoNode.
func lookup(t *testing.T, gen *Generator, text string) graph.NodeID {
	t.Helper()
	tv, err := schema.ParseTypeVar(gen.ctx.Pool, text)
	require.NoError(t, err)
	return gen.CG.Lookup(graph.Key(tv))
}

// storeCallee stores an int through its only parameter.
func storeCallee() ir.Function {
	return ir.Function{
		Name:   "callee",
		Params: 1,
		Constraints: []string{
			"callee.in_0 <= p",
			"#int <= p.store32",
		},
		Cells:  map[string]string{"p": "ptr"},
		Values: []ir.Value{{ID: "p", Var: "p"}},
	}
}

// storeCaller passes a local pointer to callee.
func storeCaller() ir.Function {
	return ir.Function{
		Name:   "main",
		Values: []ir.Value{{ID: "q", Var: "q"}},
		Calls:  []ir.Call{{ID: "c0", Callee: "callee", Args: []string{"q"}}},
	}
}

// local returns the covariant node of a function local, or NoNode.
func local(gen *Generator, f, name string, labels ...schema.FieldLabel) graph.NodeID {
	tv := gen.ctx.Pool.Var(f + "/" + name)
	for _, l := range labels {
		tv = tv.PushLabel(l)
	}
	return gen.CG.Lookup(graph.Key(tv))
}
