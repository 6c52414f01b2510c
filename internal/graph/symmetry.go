package graph

import "github.com/NotDec/NotDec-sub000/internal/pni"

// mirror returns the edge that must accompany e on the dual side, or false
// for edges that have no mirror.
func (g *Graph) mirror(e Edge) (Edge, bool) {
	if e.Label.IsRecallBase() || e.Label.IsForgetBase() {
		return Edge{}, false
	}
	if g.IsStartOrEnd(e.From) || g.IsStartOrEnd(e.To) {
		return Edge{}, false
	}
	fc, tc := g.nodes[e.From].dual, g.nodes[e.To].dual
	if fc == NoNode || tc == NoNode {
		return Edge{From: NoNode, To: NoNode, Label: e.Label}, true
	}
	if e.Label.IsOne() {
		return Edge{From: tc, To: fc, Label: e.Label}, true
	}
	return Edge{From: fc, To: tc, Label: e.Label}, true
}

// MakeSymmetry adds every missing dual mirror, creating dual nodes where
// needed. Saturation adds One edges on one side only, so this runs before
// any pass that relies on symmetry.
func (g *Graph) MakeSymmetry() int {
	added := 0
	for _, n := range g.Nodes() {
		if g.IsStartOrEnd(n.ID) {
			continue
		}
		for _, e := range n.Out() {
			if g.IsStartOrEnd(e.To) {
				continue
			}
			g.ensureDual(e.From)
			g.ensureDual(e.To)
			m, ok := g.mirror(e)
			if !ok {
				continue
			}
			if g.OnlyAddEdge(m.From, m.To, m.Label) {
				added++
			}
		}
	}
	return added
}

func (g *Graph) ensureDual(id NodeID) {
	n := g.nodes[id]
	if n.dual != NoNode {
		return
	}
	key := n.Key.Dual()
	if d, ok := g.index[key]; ok {
		g.SetDual(id, d)
		return
	}
	g.SetDual(id, g.addNode(key, n.Ref))
}

// CheckSymmetry verifies that every edge between nodes with duals has its
// mirror and that duals share a lattice cell.
func (g *Graph) CheckSymmetry() error {
	for _, n := range g.Nodes() {
		if n.dual != NoNode && g.PG != nil && !g.shareCell(n.ID, n.dual) {
			return &InvariantError{
				Code:    ErrCodeSymmetryBroken,
				Message: "dual nodes do not share a cell",
				Graph:   g.Name,
				Node:    n.Key.String(),
			}
		}
		for _, e := range n.Out() {
			m, ok := g.mirror(e)
			if !ok {
				continue
			}
			if m.From == NoNode || !g.HasEdge(m.From, m.To, m.Label) {
				return &InvariantError{
					Code:    ErrCodeSymmetryBroken,
					Message: "edge " + e.Label.String() + " to " + g.nodes[e.To].Key.String() + " has no dual",
					Graph:   g.Name,
					Node:    n.Key.String(),
				}
			}
		}
	}
	return nil
}

func (g *Graph) shareCell(a, b NodeID) bool {
	ra, rb := g.nodes[a].Ref, g.nodes[b].Ref
	if ra == rb {
		return true
	}
	if ra == pni.NoRef || rb == pni.NoRef {
		return false
	}
	return g.PG.Same(ra, rb)
}
