package graph

import (
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// AddConstraint adds sub <= sup. Both variables and every prefix of their
// paths get node pairs linked by recall and forget edges, and the two
// variables are joined by a One edge on both variance sides.
//
// A constraint between two different primitives is dropped with a warning.
func (g *Graph) AddConstraint(sub, sup *schema.TypeVar) (NodeID, NodeID) {
	if sub.IsPrimitive() && sup.IsPrimitive() && !sub.HasLabel() && !sup.HasLabel() {
		if sub != sup {
			g.logger.Warn("graph: dropping constraint between different primitives",
				"sub", sub.String(), "sup", sup.String())
		}
		return NoNode, NoNode
	}
	from := g.InsertVar(sub)
	to := g.InsertVar(sup)
	g.addRecalls(from)
	g.addForgets(from)
	g.addRecalls(to)
	g.addForgets(to)
	g.AddEdgeDualVariance(from, to, One())
	return from, to
}

// AddConstraints adds every constraint in order.
func (g *Graph) AddConstraints(cons []schema.Constraint) {
	for _, c := range cons {
		g.AddConstraint(c.Sub, c.Sup)
	}
}

// EnsurePath creates the node for key together with the recall and forget
// chains of its prefixes.
func (g *Graph) EnsurePath(key NodeKey) NodeID {
	id := g.Insert(key)
	g.addRecalls(id)
	g.addForgets(id)
	return id
}

// addRecalls walks the prefixes of id and adds prefix -Recall(l)-> var.
func (g *Graph) addRecalls(id NodeID) {
	cur := id
	for {
		label, nextKey, ok := g.nodes[cur].Key.ForgetOnce()
		if !ok {
			return
		}
		next := g.Insert(nextKey)
		g.AddEdgeDualVariance(next, cur, Recall(label))
		cur = next
	}
}

// addForgets walks the prefixes of id and adds var -Forget(l)-> prefix.
func (g *Graph) addForgets(id NodeID) {
	cur := id
	for {
		label, nextKey, ok := g.nodes[cur].Key.ForgetOnce()
		if !ok {
			return
		}
		next := g.Insert(nextKey)
		g.AddEdgeDualVariance(cur, next, Forget(label))
		cur = next
	}
}

// AddEdgeDualVariance adds from -l-> to and its mirror on the dual side.
// A One edge mirrors as toC -> fromC, any other label as fromC -> toC.
func (g *Graph) AddEdgeDualVariance(from, to NodeID, l EdgeLabel) {
	if from == to {
		if l.IsOne() {
			return
		}
		g.AddEdge(from, from, l)
		if d := g.nodes[from].dual; d != NoNode {
			g.AddEdge(d, d, l)
		}
		return
	}
	g.AddEdge(from, to, l)
	fc, tc := g.nodes[from].dual, g.nodes[to].dual
	if fc == NoNode || tc == NoNode {
		g.logger.Debug("graph: edge without dual",
			"from", g.nodes[from].Key.String(), "to", g.nodes[to].Key.String())
		return
	}
	if l.IsOne() {
		g.AddEdge(tc, fc, l)
	} else {
		g.AddEdge(fc, tc, l)
	}
}

// AddRecallEdge relates a derived value to its source: from -Recall(l)-> to
// and to -Forget(l)-> from, both mirrored.
func (g *Graph) AddRecallEdge(from, to NodeID, l schema.FieldLabel) {
	g.AddEdgeDualVariance(from, to, Recall(l))
	g.AddEdgeDualVariance(to, from, Forget(l))
}

// SetPointerAdd records result = ptr + off as an offset edge pair.
func (g *Graph) SetPointerAdd(ptr, result NodeID, off schema.OffsetRange) {
	if g.layerSplit {
		g.OnlyAddEdge(ptr, result, Recall(schema.Offset(off)))
		return
	}
	g.AddRecallEdge(ptr, result, schema.Offset(off))
}
