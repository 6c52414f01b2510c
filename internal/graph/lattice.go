package graph

import (
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// SolvePNI runs the lattice worklist to a fixpoint. Additions that resolve
// to pointer plus number become offset edges from the pointer to the
// result, which may wake further constraints. It reports whether anything
// changed.
func (g *Graph) SolvePNI() bool {
	if g.PG == nil {
		return false
	}
	anyChanged := false
	for {
		changed, adds := g.PG.Solve()
		anyChanged = anyChanged || changed
		if len(adds) == 0 {
			return anyChanged
		}
		for _, pa := range adds {
			ptr, res := pa.Ptr.Node, pa.Result.Node
			if g.Node(ptr) == nil || g.Node(res) == nil {
				g.logger.Debug("graph: pointer addition over removed node", "origin", pa.Origin)
				continue
			}
			before := g.EdgeCount()
			g.SetPointerAdd(ptr, res, pa.Offset)
			if g.EdgeCount() != before {
				anyChanged = true
			}
		}
	}
}

// ApplyConstPolicy classifies integer constant nodes: a small non-zero
// magnitude is a number, anything else may still be an address.
func (g *Graph) ApplyConstPolicy() {
	if g.PG == nil {
		return
	}
	for _, n := range g.Nodes() {
		v := n.Key.Var
		if !v.IsIntConst() || v.HasLabel() || n.Ref == pni.NoRef {
			continue
		}
		r := v.Base().Value
		if len(r.Access) > 0 {
			continue
		}
		if k := pni.ConstKind(r.Offset); k != pni.Unknown {
			g.PG.SetKind(n.Ref, k)
		}
	}
}

// CheckPNIAndEdges compares the lattice with the edges. A number node with
// pointer edges is an error; a pointer whose only way out is a primitive
// is suspicious and logged.
func (g *Graph) CheckPNIAndEdges() error {
	if g.PG == nil {
		return nil
	}
	for _, n := range g.Nodes() {
		if n.Ref == pni.NoRef {
			continue
		}
		switch g.Cell(n.ID).Kind {
		case pni.Number:
			for _, e := range n.Out() {
				if e.Label.HasField() && isPointerField(e.Label.Field) {
					return &InvariantError{
						Code:    ErrCodePNIMismatch,
						Message: "number node has pointer edge " + e.Label.String(),
						Graph:   g.Name,
						Node:    n.Key.String(),
					}
				}
			}
		case pni.Pointer:
			out := n.Out()
			prims := 0
			for _, e := range out {
				if e.Label.IsForgetPrimitive() {
					prims++
				}
			}
			switch {
			case prims > 0 && prims == len(out) && prims > 1:
				return &InvariantError{
					Code:    ErrCodePNIMismatch,
					Message: "pointer node only flows into primitives",
					Graph:   g.Name,
					Node:    n.Key.String(),
				}
			case prims > 0 && prims == len(out):
				g.logger.Warn("graph: pointer node flows into a primitive", "node", n.Key.String())
			}
		}
	}
	return nil
}

func isPointerField(l schema.FieldLabel) bool {
	return l.IsOffset() || l.IsLoad() || l.IsStore()
}
