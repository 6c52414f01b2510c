package engine

import (
	"maps"
	"slices"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// InstancePair is the covariant and contravariant node of a callee
// instance at one call site.
type InstancePair struct {
	Co     graph.NodeID
	Contra graph.NodeID
}

// Generator owns the constraint graph of one unit of analysis (a
// call-graph SCC, a summary, a signature or the global memory) together
// with the maps from program values to its nodes.
type Generator struct {
	Name  string
	Funcs []string
	CG    *graph.Graph

	// V2N and V2NContra map values to their covariant and contravariant
	// nodes.
	V2N       map[ir.ValueRef]graph.NodeID
	V2NContra map[ir.ValueRef]graph.NodeID

	// CallToInstance maps a qualified call id (`caller/call`) to the
	// callee instance created for it; CallTargets to the callee name.
	CallToInstance map[string]InstancePair
	CallTargets    map[string]string

	UnhandledCalls []ir.UnhandledCall

	ctx *Context
}

func newGenerator(ctx *Context, name string, funcs []string, g *graph.Graph) *Generator {
	return &Generator{
		Name:           name,
		Funcs:          slices.Clone(funcs),
		CG:             g,
		V2N:            make(map[ir.ValueRef]graph.NodeID),
		V2NContra:      make(map[ir.ValueRef]graph.NodeID),
		CallToInstance: make(map[string]InstancePair),
		CallTargets:    make(map[string]string),
		ctx:            ctx,
	}
}

// Context returns the run context.
func (g *Generator) Context() *Context { return g.ctx }

// HasFunc reports whether f belongs to this unit.
func (g *Generator) HasFunc(f string) bool { return slices.Contains(g.Funcs, f) }

// Clone deep-copies the generator under a new name.
func (g *Generator) Clone(name string) *Generator {
	cg, old2new := g.CG.Clone()
	cg.Name = name
	out := newGenerator(g.ctx, name, g.Funcs, cg)
	out.remapFrom(g, old2new)
	return out
}

// remapFrom copies the maps of src through old2new. Entries whose node
// did not survive are dropped.
func (g *Generator) remapFrom(src *Generator, old2new map[graph.NodeID]graph.NodeID) {
	for v, id := range src.V2N {
		if n, ok := old2new[id]; ok {
			g.V2N[v] = n
		}
	}
	for v, id := range src.V2NContra {
		if n, ok := old2new[id]; ok {
			g.V2NContra[v] = n
		}
	}
	for call, p := range src.CallToInstance {
		co, ok1 := old2new[p.Co]
		contra, ok2 := old2new[p.Contra]
		if ok1 && ok2 {
			g.CallToInstance[call] = InstancePair{Co: co, Contra: contra}
		}
	}
	for call, callee := range src.CallTargets {
		g.CallTargets[call] = callee
	}
	g.UnhandledCalls = append(g.UnhandledCalls, src.UnhandledCalls...)
}

// MergeNodeTo merges from into to and repoints every map entry.
func (g *Generator) MergeNodeTo(from, to graph.NodeID, noSelfLoop bool) error {
	if err := g.CG.MergeNodeTo(from, to, noSelfLoop); err != nil {
		return err
	}
	g.replaceNode(from, to)
	return nil
}

func (g *Generator) replaceNode(from, to graph.NodeID) {
	for v, id := range g.V2N {
		if id == from {
			g.V2N[v] = to
		}
	}
	for v, id := range g.V2NContra {
		if id == from {
			g.V2NContra[v] = to
		}
	}
	for call, p := range g.CallToInstance {
		if p.Co == from {
			p.Co = to
		}
		if p.Contra == from {
			p.Contra = to
		}
		g.CallToInstance[call] = p
	}
}

// isMapped reports whether some value maps to id.
func (g *Generator) isMapped(id graph.NodeID) bool {
	for _, n := range g.V2N {
		if n == id {
			return true
		}
	}
	for _, n := range g.V2NContra {
		if n == id {
			return true
		}
	}
	return false
}

// Values returns the mapped values in text order.
func (g *Generator) Values() []ir.ValueRef {
	seen := make(map[ir.ValueRef]bool, len(g.V2N)+len(g.V2NContra))
	var out []ir.ValueRef
	for v := range g.V2N {
		seen[v] = true
		out = append(out, v)
	}
	for v := range g.V2NContra {
		if !seen[v] {
			out = append(out, v)
		}
	}
	sortValues(out)
	return out
}

// Calls returns the instantiated call ids in text order.
func (g *Generator) Calls() []string {
	out := make([]string, 0, len(g.CallToInstance))
	for c := range g.CallToInstance {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (g *Generator) addUnhandled(caller, call, callee, reason string) {
	g.UnhandledCalls = append(g.UnhandledCalls, ir.UnhandledCall{
		Caller: caller,
		Call:   call,
		Callee: callee,
		Reason: reason,
	})
	g.ctx.Logger.Warn("engine: unhandled call",
		"caller", caller, "call", call, "callee", callee, "reason", reason)
}

func sortValues(vs []ir.ValueRef) {
	slices.SortFunc(vs, func(a, b ir.ValueRef) int { return strings.Compare(a.String(), b.String()) })
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
