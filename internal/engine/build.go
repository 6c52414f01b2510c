package engine

import (
	"fmt"
	"strconv"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// funcScope resolves the variable texts of one function body.
type funcScope struct {
	gen    *Generator
	fn     *ir.Function
	consts map[string]int64
}

func (g *Generator) scope(f *ir.Function) *funcScope {
	consts := make(map[string]int64, len(f.Constants))
	for _, c := range f.Constants {
		consts[c.Var] = c.Value
	}
	return &funcScope{gen: g, fn: f, consts: consts}
}

// resolve parses text and qualifies its base: functions, primitives and
// MEMORY are global, declared constants become integer constants used by
// this function, and any other name is local to the function.
func (s *funcScope) resolve(text string) (*schema.TypeVar, error) {
	tv, err := schema.ParseTypeVar(s.gen.ctx.Pool, text)
	if err != nil {
		return nil, &AnalysisError{Code: ErrCodeBadConstraint, Message: fmt.Sprintf("variable %q in %s", text, s.fn.Name), Err: err}
	}
	return s.qualify(tv), nil
}

func (s *funcScope) qualify(tv *schema.TypeVar) *schema.TypeVar {
	b := tv.Base()
	if b.Kind != schema.BaseNamed || b.Instance != 0 || b.Actual {
		return tv
	}
	if s.gen.ctx.Program.IsFunction(b.Name) {
		return tv
	}
	user := s.fn.Name + "/" + b.Name
	if v, ok := s.consts[b.Name]; ok {
		return tv.WithBase(schema.IntConst(schema.OffsetRange{Offset: v}, user))
	}
	return tv.WithBase(schema.Named(user))
}

// node returns the covariant node of tv, creating its prefix chain.
func (s *funcScope) node(tv *schema.TypeVar) graph.NodeID {
	return s.gen.CG.EnsurePath(graph.Key(tv))
}

// BuildFunction adds the constraints of f to the graph and maps its
// function node, parameters, return value and tracked values.
func (g *Generator) BuildFunction(f *ir.Function) error {
	s := g.scope(f)
	pool := g.ctx.Pool
	fv := pool.Var(f.Name)

	g.mapValue(ir.FuncRef(f.Name), g.CG.InsertVar(fv))
	for i := 0; i < f.Params; i++ {
		g.mapValue(ir.ArgRef(f.Name, i), s.node(fv.PushLabel(schema.In(i))))
	}
	if f.Returns {
		g.mapValue(ir.ReturnRef(f.Name), s.node(fv.PushLabel(schema.Out())))
	}
	if f.Declaration || f.Intrinsic {
		return nil
	}

	for _, text := range f.Constraints {
		c, err := schema.ParseConstraint(pool, text)
		if err != nil {
			return &AnalysisError{Code: ErrCodeBadConstraint, Message: fmt.Sprintf("constraint %q in %s", text, f.Name), Err: err}
		}
		sub, sup := s.qualify(c.Sub), s.qualify(c.Sup)
		g.CG.AddConstraint(sub, sup)
		s.markAccessed(sub)
		s.markAccessed(sup)
	}

	for _, v := range f.Values {
		tv, err := s.resolve(v.Var)
		if err != nil {
			return err
		}
		g.mapValue(ir.LocalRef(f.Name, v.ID), s.node(tv))
	}

	for _, name := range sortedKeys(f.Cells) {
		tv, err := s.resolve(name)
		if err != nil {
			return err
		}
		cell, err := pni.ParseCell(f.Cells[name], g.ctx.PointerSize)
		if err != nil {
			return &AnalysisError{Code: ErrCodeBadCell, Message: fmt.Sprintf("cell of %s in %s", name, f.Name), Err: err}
		}
		id := s.node(tv)
		if ref := g.CG.Node(id).Ref; ref != pni.NoRef && g.CG.PG != nil {
			g.CG.PG.SetCell(ref, cell)
		}
	}

	for i, a := range f.Arith {
		if err := s.addArith(a, f.Name+"/arith"+strconv.Itoa(i)); err != nil {
			return err
		}
	}

	for _, c := range f.Calls {
		if err := s.addCall(c); err != nil {
			return err
		}
	}

	g.CG.ApplyConstPolicy()
	return nil
}

// markAccessed makes every prefix of tv that is loaded from or stored
// through a pointer, unless its cell is already known. Cell hints applied
// later still win.
func (s *funcScope) markAccessed(tv *schema.TypeVar) {
	pg := s.gen.CG.PG
	if pg == nil {
		return
	}
	for {
		prefix, l, ok := tv.PopLabel()
		if !ok {
			return
		}
		if l.IsLoad() || l.IsStore() {
			ref := s.gen.CG.Node(s.node(prefix)).Ref
			if ref != pni.NoRef && pg.Kind(ref) == pni.Unknown {
				pg.SetKind(ref, pni.Pointer)
			}
		}
		tv = prefix
	}
}

func (g *Generator) mapValue(v ir.ValueRef, id graph.NodeID) {
	g.V2N[v] = id
	if d := g.CG.Dual(id); d != graph.NoNode {
		g.V2NContra[v] = d
	}
}

func (s *funcScope) operand(text string) (pni.Operand[graph.NodeID], error) {
	tv, err := s.resolve(text)
	if err != nil {
		return pni.Operand[graph.NodeID]{}, err
	}
	id := s.node(tv)
	r := pni.UnknownRange()
	if tv.IsIntConst() && !tv.HasLabel() {
		r = tv.Base().Value
	}
	return pni.Operand[graph.NodeID]{Ref: s.gen.CG.Node(id).Ref, Node: id, Range: r}, nil
}

func (s *funcScope) addArith(a ir.Arith, origin string) error {
	if s.gen.CG.PG == nil {
		return nil
	}
	left, err := s.operand(a.Left)
	if err != nil {
		return err
	}
	right, err := s.operand(a.Right)
	if err != nil {
		return err
	}
	res, err := s.operand(a.Result)
	if err != nil {
		return err
	}
	switch a.Op {
	case ir.OpAdd:
		s.gen.CG.PG.AddAdd(left, right, res, origin)
	case ir.OpSub:
		s.gen.CG.PG.AddSub(left, right, res, origin)
	default:
		return &AnalysisError{Code: ErrCodeBadConstraint, Message: fmt.Sprintf("unknown arith op %q in %s", a.Op, origin)}
	}
	return nil
}

// addCall relates the arguments and result of a call to its callee. A
// callee in the same unit is used directly; any other callee gets a fresh
// instance that the driver later links to the callee's summary.
func (s *funcScope) addCall(c ir.Call) error {
	g := s.gen
	f := s.fn.Name
	callID := f + "/" + c.ID
	switch {
	case c.Callee == "":
		g.addUnhandled(f, callID, "", "indirect call")
		return nil
	case c.Format == "" && !g.ctx.Program.IsFunction(c.Callee):
		g.addUnhandled(f, callID, c.Callee, "unknown callee")
		return nil
	}
	if callee, ok := g.ctx.Program.Function(c.Callee); ok && callee.Intrinsic {
		return nil
	}

	target := g.ctx.Pool.Var(c.Callee)
	direct := g.HasFunc(c.Callee) && c.Format == ""
	if !direct {
		target = g.ctx.Pool.Intern(schema.Base{
			Kind:     schema.BaseNamed,
			Name:     c.Callee,
			Instance: g.ctx.Namer.Next(),
		}, nil)
	}

	for i, arg := range c.Args {
		tv, err := s.resolve(arg)
		if err != nil {
			return err
		}
		g.CG.AddConstraint(tv, target.PushLabel(schema.In(i)))
	}
	if c.Result != "" {
		tv, err := s.resolve(c.Result)
		if err != nil {
			return err
		}
		g.CG.AddConstraint(target.PushLabel(schema.Out()), tv)
	}
	if direct {
		return nil
	}
	co := g.CG.InsertVar(target)
	g.CallToInstance[callID] = InstancePair{Co: co, Contra: g.CG.Dual(co)}
	g.CallTargets[callID] = c.Callee
	return nil
}
