package engine

import (
	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

func isOffsetEdge(e graph.Edge) bool {
	return e.Label.HasField() && e.Label.Field.IsOffset()
}

// EliminateCycle removes every cycle of offset edges.
//
// A pointer that moves through a cycle of offsets walks an array. For each
// such component the smallest positive offset or stride found inside it
// becomes the element size: the component collapses into a base node N1
// and an element node N2 joined by `@0+size`. Edges entering the component
// move to N1 and edges leaving it move to N2; an edge stepping by exactly
// one element is rewritten to match. A component without any positive
// offset is a plain alias cycle and collapses into one node.
func (g *Generator) EliminateCycle() error {
	cg := g.CG
	for _, scc := range cg.SCCs(isOffsetEdge) {
		if len(scc) == 1 && !cg.HasSelfLoop(scc[0], isOffsetEdge) {
			continue
		}
		if err := g.eliminateSCC(scc); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) eliminateSCC(scc []graph.NodeID) error {
	cg := g.CG
	in := make(map[graph.NodeID]bool, len(scc))
	for _, id := range scc {
		in[id] = true
	}

	var internal, incoming, outgoing []graph.Edge
	for _, id := range scc {
		n := cg.Node(id)
		for _, e := range n.In() {
			if !in[e.From] {
				incoming = append(incoming, e)
			}
		}
		for _, e := range n.Out() {
			if in[e.To] {
				internal = append(internal, e)
			} else {
				outgoing = append(outgoing, e)
			}
		}
	}

	var (
		minOff  int64
		minEdge graph.Edge
		found   bool
	)
	visit := func(off int64, e graph.Edge) {
		if off > 0 && (!found || off < minOff) {
			minOff, minEdge, found = off, e, true
		}
	}
	for _, e := range internal {
		if !isOffsetEdge(e) {
			continue
		}
		r := e.Label.Field.Range
		visit(r.Offset, e)
		for _, a := range r.Access {
			visit(int64(a.Size), e)
		}
	}
	for _, e := range internal {
		cg.RemoveEdge(e.From, e.To, e.Label)
	}

	if !found {
		if len(scc) == 1 {
			return nil
		}
		target := scc[0]
		for _, id := range scc {
			if cg.IsSpecial(id) {
				target = id
				break
			}
		}
		g.ctx.Logger.Debug("engine: merging offset-free cycle", "graph", g.Name, "nodes", len(scc))
		for _, id := range scc {
			if id == target || cg.IsSpecial(id) {
				continue
			}
			if err := g.MergeNodeTo(id, target, true); err != nil {
				return err
			}
		}
		return nil
	}

	n1, n2 := minEdge.From, minEdge.To
	step := graph.Recall(schema.Offset(schema.OffsetRange{Access: []schema.ArrayOffset{{Size: uint64(minOff)}}}))
	cg.AddEdge(n1, n2, step)
	g.ctx.Logger.Debug("engine: offset cycle becomes array",
		"graph", g.Name, "base", cg.Node(n1).Key.String(), "element", cg.Node(n2).Key.String(), "stride", minOff)

	// toElement reports whether l steps exactly one element and returns the
	// label to keep.
	toElement := func(l graph.EdgeLabel) (bool, graph.EdgeLabel) {
		if !l.HasField() || !l.Field.IsOffset() {
			return false, l
		}
		r := l.Field.Range
		switch {
		case len(r.Access) == 0 && r.Offset == minOff:
			return true, step
		case len(r.Access) == 1 && r.Access[0].Size == uint64(minOff):
			if r.Offset == 0 {
				return true, l
			}
			l.Field.Range = schema.OffsetRange{Offset: r.Offset}
		}
		return false, l
	}

	for _, e := range incoming {
		cg.RemoveEdge(e.From, e.To, e.Label)
		elem, l := toElement(e.Label)
		to := n1
		if elem {
			to = n2
		}
		cg.AddEdge(e.From, to, l)
	}
	for _, e := range outgoing {
		cg.RemoveEdge(e.From, e.To, e.Label)
		elem, l := toElement(e.Label)
		from := n2
		if elem {
			from = n1
		}
		cg.AddEdge(from, e.To, l)
	}

	for _, id := range scc {
		if id == n1 || id == n2 || cg.IsSpecial(id) {
			continue
		}
		if err := g.MergeNodeTo(id, n1, true); err != nil {
			return err
		}
	}
	return nil
}
