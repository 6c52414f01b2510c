package engine

import (
	"fmt"
	"strconv"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/rexp"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// GenSummary extracts the constraints between the functions of g (and
// primitives) from its saturated graph. It returns nil when no path
// connects them.
func GenSummary(g *Generator) (*ir.Summary, error) {
	work := g.Clone(g.Name + "-summary")
	work.CG.LinkVars(g.Funcs, true)
	if err := work.CG.Saturate(g.ctx.Config.saturateOptions()); err != nil {
		return nil, err
	}
	if err := work.CG.LayerSplit(); err != nil {
		return nil, err
	}
	expr := rexp.StartToEnd(work.CG)
	cons, err := rexp.ToConstraints(g.ctx.Pool, g.ctx.Namer, expr)
	if err != nil {
		return nil, fmt.Errorf("summary of %s: %w", g.Name, err)
	}
	if len(cons) == 0 {
		g.ctx.Logger.Debug("engine: empty summary", "scc", g.Name)
		return nil, nil
	}

	s := &ir.Summary{PNIMap: make(map[string]string)}
	groups := make(map[pni.Ref]int)
	record := func(tv *schema.TypeVar) {
		for {
			key := tv.String()
			if _, done := s.PNIMap[key]; done {
				return
			}
			if id := g.CG.Lookup(graph.Key(tv)); id != graph.NoNode && g.CG.PG != nil {
				if ref := g.CG.Node(id).Ref; ref != pni.NoRef {
					root := g.CG.PG.Find(ref)
					n, ok := groups[root]
					if !ok {
						n = len(groups) + 1
						groups[root] = n
					}
					s.PNIMap[key] = g.CG.Cell(id).String() + " #" + strconv.Itoa(n)
				}
			}
			prefix, _, ok := tv.PopLabel()
			if !ok {
				return
			}
			tv = prefix
		}
	}
	for _, c := range cons {
		s.Constraints = append(s.Constraints, c.String())
		record(c.Sub)
		record(c.Sup)
	}
	g.ctx.Logger.Debug("engine: summary generated", "scc", g.Name, "constraints", len(s.Constraints))
	return s, nil
}

// FromSummary builds the generator of a summary: its constraints, made
// symmetric, with the lattice cells of its pni map. It returns nil when
// the summary mentions none of funcs.
func FromSummary(ctx *Context, name string, funcs []string, s ir.Summary) (*Generator, error) {
	gen := ctx.NewGenerator(name, funcs)
	for _, text := range s.Constraints {
		c, err := schema.ParseConstraint(ctx.Pool, text)
		if err != nil {
			return nil, &AnalysisError{Code: ErrCodeBadConstraint, Message: fmt.Sprintf("summary %s", name), Err: err}
		}
		gen.CG.AddConstraint(c.Sub, c.Sup)
	}
	gen.CG.MakeSymmetry()
	if err := gen.applyPNIMap(s.PNIMap); err != nil {
		return nil, err
	}
	gen.mapFunctions()
	if len(gen.V2N) == 0 {
		return nil, nil
	}
	return gen, nil
}

// applyPNIMap sets the listed cells. Entries sharing a `#group` token end
// up in one cell. Variables the graph does not mention are skipped.
func (g *Generator) applyPNIMap(m map[string]string) error {
	if g.CG.PG == nil {
		return nil
	}
	groups := make(map[string]pni.Ref)
	for _, name := range sortedKeys(m) {
		text, group := ir.SplitCellGroup(m[name])
		cell, err := pni.ParseCell(text, g.ctx.PointerSize)
		if err != nil {
			return &AnalysisError{Code: ErrCodeBadCell, Message: fmt.Sprintf("pni map of %s: %s", g.Name, name), Err: err}
		}
		tv, err := schema.ParseTypeVar(g.ctx.Pool, name)
		if err != nil {
			return &AnalysisError{Code: ErrCodeBadConstraint, Message: fmt.Sprintf("pni map of %s", g.Name), Err: err}
		}
		id := g.CG.Lookup(graph.Key(tv))
		if id == graph.NoNode {
			continue
		}
		ref := g.CG.Node(id).Ref
		if ref == pni.NoRef {
			continue
		}
		g.CG.PG.SetCell(ref, cell)
		if group == "" {
			continue
		}
		if first, ok := groups[group]; ok {
			g.CG.PG.Unify(first, ref)
		} else {
			groups[group] = ref
		}
	}
	g.CG.SolvePNI()
	return nil
}

// mapFunctions maps the function, parameter and return nodes of every
// function of g that its graph mentions.
func (g *Generator) mapFunctions() {
	for _, f := range g.Funcs {
		fv := g.ctx.Pool.Var(f)
		if id := g.CG.Lookup(graph.Key(fv)); id != graph.NoNode {
			g.mapValue(ir.FuncRef(f), id)
		}
	}
	for _, n := range g.CG.Nodes() {
		k := n.Key
		if k.NewLayer || k.Variance != schema.Covariant || k.Var.NumLabels() != 1 {
			continue
		}
		b := k.Var.Base()
		if b.Kind != schema.BaseNamed || b.Instance != 0 || b.Actual || !g.HasFunc(b.Name) {
			continue
		}
		l, _ := k.Var.LastLabel()
		switch l.Kind {
		case schema.LabelIn:
			if i, err := strconv.Atoi(l.Name); err == nil {
				g.mapValue(ir.ArgRef(b.Name, i), n.ID)
			}
		case schema.LabelOut:
			if l.Name == "" {
				g.mapValue(ir.ReturnRef(b.Name), n.ID)
			}
		}
	}
}

// InstantiateSummary copies the summary into g for the call callID and
// links the copy to the call's instance nodes.
//
// Every copied variable gets the call's instance id, so two calls of the
// same callee never share nodes. Variables that were already instances
// in the summary get fresh ids. The callee's own variables are marked
// actual; the formal side stays with the caller's instance variable.
func (g *Generator) InstantiateSummary(callID string, summary *Generator) error {
	pair, ok := g.CallToInstance[callID]
	if !ok {
		return &graph.InvariantError{
			Code:    graph.ErrCodeMissingNode,
			Message: "no instance for call " + callID,
			Graph:   g.Name,
		}
	}
	instVar := g.CG.Node(pair.Co).Key.Var
	inst := instVar.Base().Instance
	callee := instVar.Base().Name

	fresh := make(map[uint64]uint64)
	transform := func(k graph.NodeKey) graph.NodeKey {
		v := k.Var
		if v.IsPrimitive() || v.IsMemory() {
			return k
		}
		b := v.Base()
		if b.Instance != 0 {
			n, ok := fresh[b.Instance]
			if !ok {
				n = g.ctx.Namer.Next()
				fresh[b.Instance] = n
			}
			b.Instance = n
		} else {
			b.Instance = inst
		}
		if b.Kind == schema.BaseNamed && summary.HasFunc(b.Name) {
			b.Actual = true
		}
		k.Var = v.WithBase(b)
		return k
	}
	old2new := graph.CloneInto(g.CG, summary.CG, transform)

	fid, ok := summary.V2N[ir.FuncRef(callee)]
	if !ok {
		g.ctx.Logger.Debug("engine: summary does not mention callee", "call", callID, "callee", callee)
		return nil
	}
	f := old2new[fid]
	fc := g.CG.Dual(f)
	g.CG.AddEdge(f, pair.Co, graph.One())
	if fc != graph.NoNode && pair.Contra != graph.NoNode {
		g.CG.AddEdge(pair.Contra, fc, graph.One())
	}
	return nil
}
