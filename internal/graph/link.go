package graph

import (
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// LinkVars connects the interesting variables to #Start and #End so that
// the accepted paths describe constraints between them. Primitives are
// always interesting. With linkLoadStore, load and store nodes of the
// interesting variables become endpoints too, which keeps pointer fields in
// the summary.
func (g *Graph) LinkVars(interesting []string, linkLoadStore bool) {
	set := nameSet(interesting)
	start := g.Start()
	for _, n := range g.Nodes() {
		if g.IsStartOrEnd(n.ID) || n.Key.NewLayer {
			continue
		}
		v := n.Key.Var
		if v.HasLabel() || !v.HasBaseName() || !set[v.BaseName()] {
			continue
		}
		g.OnlyAddEdge(start, n.ID, RecallBase(v, n.Key.Variance))
		g.StartNodes[n.ID] = true
	}
	g.LinkPrimitives()
	g.linkEnd(set)
	if linkLoadStore {
		g.linkLoadStore(set)
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// LinkPrimitives adds N -ForgetBase-> #End for every primitive node.
func (g *Graph) LinkPrimitives() {
	end := g.End()
	for _, n := range g.Nodes() {
		if !g.IsPrimitive(n.ID) {
			continue
		}
		g.OnlyAddEdge(n.ID, end, ForgetBase(n.Key.Var, n.Key.Variance))
		g.EndNodes[n.ID] = true
	}
}

// LinkEndVars adds N -ForgetBase-> #End for the bare nodes of the
// interesting variables.
func (g *Graph) LinkEndVars(interesting []string) {
	g.linkEnd(nameSet(interesting))
}

func (g *Graph) linkEnd(set map[string]bool) {
	end := g.End()
	for _, n := range g.Nodes() {
		if g.IsStartOrEnd(n.ID) || n.Key.NewLayer {
			continue
		}
		v := n.Key.Var
		if v.HasLabel() || !v.HasBaseName() || !set[v.BaseName()] {
			continue
		}
		g.OnlyAddEdge(n.ID, end, ForgetBase(v, n.Key.Variance))
		g.EndNodes[n.ID] = true
	}
}

// LinkLoadStore makes the load and store nodes of the interesting
// variables endpoints. A value read through a covariant load flows out to
// #End, a value written through a covariant store flows in from #Start,
// and contravariant nodes are the reverse. Accesses through other
// variables stay internal and are eliminated from the summary.
func (g *Graph) LinkLoadStore(interesting []string) {
	g.linkLoadStore(nameSet(interesting))
}

func (g *Graph) linkLoadStore(set map[string]bool) {
	start, end := g.Start(), g.End()
	for _, n := range g.Nodes() {
		if g.IsSpecial(n.ID) || n.Key.NewLayer {
			continue
		}
		if v := n.Key.Var; !v.HasBaseName() || !set[v.BaseName()] {
			continue
		}
		last, ok := n.Key.Var.LastLabel()
		if !ok || !(last.IsLoad() || last.IsStore()) {
			continue
		}
		outward := last.IsLoad() == (n.Key.Variance == schema.Covariant)
		if outward {
			g.OnlyAddEdge(n.ID, end, ForgetBase(n.Key.Var, n.Key.Variance))
			g.EndNodes[n.ID] = true
		} else {
			g.OnlyAddEdge(start, n.ID, RecallBase(n.Key.Var, n.Key.Variance))
			g.StartNodes[n.ID] = true
		}
	}
}

// LinkConstantPtrToMemory derives every integer constant classified as a
// pointer from MEMORY at the constant's offset.
func (g *Graph) LinkConstantPtrToMemory() {
	if g.PG == nil {
		return
	}
	for _, n := range g.Nodes() {
		v := n.Key.Var
		if !v.IsIntConst() || v.HasLabel() || n.Key.Variance != schema.Covariant || n.Key.NewLayer {
			continue
		}
		off := v.Base().Value
		if off.IsZero() || g.Cell(n.ID).Kind != pni.Pointer {
			continue
		}
		g.AddRecallEdge(g.Memory(schema.Covariant), n.ID, schema.Offset(off))
	}
}

// ChangeStoreToLoad replaces every store recall with the matching load
// recall. Sketches only describe what a pointer points to, so both
// directions of access collapse into one.
func (g *Graph) ChangeStoreToLoad() {
	for _, n := range g.Nodes() {
		for _, e := range n.Out() {
			if !e.Label.IsRecall() || !e.Label.Field.IsStore() {
				continue
			}
			g.OnlyAddEdge(e.From, e.To, Recall(e.Label.Field.ToLoad()))
			g.RemoveEdge(e.From, e.To, e.Label)
		}
	}
}

// OffsetZeroToOne turns recall and forget edges of a zero offset into One
// edges: a zero offset leaves the value unchanged.
func (g *Graph) OffsetZeroToOne() {
	for _, n := range g.Nodes() {
		for _, e := range n.Out() {
			if !e.Label.HasField() || !e.Label.Field.IsZeroOffset() {
				continue
			}
			g.RemoveEdge(e.From, e.To, e.Label)
			if e.From != e.To {
				g.OnlyAddEdge(e.From, e.To, One())
			}
		}
	}
}

// SketchSplit keeps only the recall half of the graph: primitives are
// linked to #End, then every forget and recall-base edge is removed.
func (g *Graph) SketchSplit() {
	g.LinkPrimitives()
	for _, n := range g.Nodes() {
		for _, e := range n.Out() {
			if e.Label.IsForget() || e.Label.IsRecallBase() {
				g.RemoveEdge(e.From, e.To, e.Label)
			}
		}
	}
	g.sketchSplit = true
}

// LayerSplit copies the graph into a second layer so that every accepted
// path is recalls, then forgets. Recall edges stay in the first layer,
// forget edges cross into the second one and One edges exist in both.
// #End moves to the second layer.
func (g *Graph) LayerSplit() error {
	if g.layerSplit {
		return nil
	}
	g.layerSplit = true
	oldNodes := g.Nodes()
	newOf := make(map[NodeID]NodeID, len(oldNodes))
	for _, n := range oldNodes {
		if n.Key.NewLayer || n.ID == g.start {
			continue
		}
		key := n.Key
		key.NewLayer = true
		ref := n.Ref
		if n.ID == g.end {
			ref = pni.NoRef
		}
		newOf[n.ID] = g.addNode(key, ref)
	}
	for old, nw := range newOf {
		if d := g.nodes[old].dual; d != NoNode {
			if nd, ok := newOf[d]; ok {
				g.nodes[nw].dual = nd
			}
		}
	}
	for _, n := range oldNodes {
		if n.Key.NewLayer {
			continue
		}
		for _, e := range n.Out() {
			if e.Label.IsRecall() || e.Label.IsRecallBase() {
				continue
			}
			src, okSrc := newOf[e.From]
			dst, okDst := newOf[e.To]
			if !okSrc || !okDst {
				return &InvariantError{
					Code:    ErrCodeUnexpectedEdge,
					Message: fmt.Sprintf("%s edge leaves #Start", e.Label),
					Graph:   g.Name,
					Node:    n.Key.String(),
				}
			}
			g.OnlyAddEdge(src, dst, e.Label)
			if e.Label.IsForget() || e.Label.IsForgetBase() {
				g.RemoveEdge(e.From, e.To, e.Label)
				g.OnlyAddEdge(e.From, dst, e.Label)
			}
		}
	}
	ends := make(map[NodeID]bool, len(g.EndNodes))
	for id := range g.EndNodes {
		if nw, ok := newOf[id]; ok {
			ends[nw] = true
		}
	}
	g.EndNodes = ends
	if g.end != NoNode {
		oldEnd := g.end
		g.end = newOf[oldEnd]
		if err := g.RemoveNode(oldEnd); err != nil {
			return err
		}
	}
	return nil
}
