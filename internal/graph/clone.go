package graph

import (
	"github.com/NotDec/NotDec-sub000/internal/pni"
)

// KeyTransform rewrites node keys while copying a graph.
type KeyTransform func(NodeKey) NodeKey

// Clone returns a deep copy of g together with the old-to-new id map.
func (g *Graph) Clone() (*Graph, map[NodeID]NodeID) {
	out := New(g.pool, g.Name, g.cloneOptions()...)
	old2new := CloneInto(out, g, nil)
	out.layerSplit = g.layerSplit
	out.sketchSplit = g.sketchSplit
	return out, old2new
}

func (g *Graph) cloneOptions() []Option {
	opts := []Option{WithLogger(g.opts.logger), WithPointerSize(g.opts.pointerSize), WithTrace(g.opts.trace...)}
	if g.PG == nil {
		opts = append(opts, WithoutLattice())
	}
	return opts
}

// CloneInto copies every node and edge of src into dst and returns the
// old-to-new id map. Special nodes map onto dst's own. transform may
// rename keys, for example to mark the copy as a call-site instance; nil
// keeps them. A transformed key that already exists in dst is reused and
// its cell unified with the copy, which merges graphs sharing variables.
func CloneInto(dst, src *Graph, transform KeyTransform) map[NodeID]NodeID {
	old2new := make(map[NodeID]NodeID, src.live)
	if src.start != NoNode {
		old2new[src.start] = dst.Start()
	}
	if src.end != NoNode {
		old2new[src.end] = dst.End()
	}
	if src.memory != NoNode {
		old2new[src.memory] = dst.Memory(src.nodes[src.memory].Key.Variance)
		if d := src.nodes[src.memory].dual; d != NoNode {
			old2new[d] = dst.Memory(src.nodes[d].Key.Variance)
		}
	}

	latticeCopy := dst.PG != nil && src.PG != nil
	var off pni.Ref
	if latticeCopy {
		off = pni.Ref(dst.PG.Len())
	}
	type pair struct{ a, b pni.Ref }
	var unify []pair
	reused := 0
	for _, n := range src.Nodes() {
		if _, ok := old2new[n.ID]; ok {
			continue
		}
		key := n.Key
		if transform != nil {
			key = transform(key)
		}
		ref := pni.NoRef
		if latticeCopy && n.Ref != pni.NoRef {
			ref = n.Ref + off
		}
		if id, ok := dst.index[key]; ok {
			old2new[n.ID] = id
			reused++
			if ref != pni.NoRef && dst.nodes[id].Ref != pni.NoRef {
				unify = append(unify, pair{dst.nodes[id].Ref, ref})
			}
			continue
		}
		old2new[n.ID] = dst.addNode(key, ref)
	}
	if latticeCopy {
		dst.PG.Absorb(src.PG, func(id NodeID) (NodeID, bool) {
			n, ok := old2new[id]
			return n, ok
		})
		for _, p := range unify {
			dst.PG.Unify(p.a, p.b)
		}
	}

	for _, n := range src.Nodes() {
		from := old2new[n.ID]
		for _, e := range n.Out() {
			dst.OnlyAddEdge(from, old2new[e.To], e.Label)
		}
		if n.dual != NoNode {
			nd := old2new[n.dual]
			if dst.nodes[from].dual == NoNode && dst.nodes[nd].dual == NoNode && nd != from {
				dst.SetDual(from, nd)
			}
		}
	}
	for id := range src.StartNodes {
		dst.StartNodes[old2new[id]] = true
	}
	for id := range src.EndNodes {
		dst.EndNodes[old2new[id]] = true
	}
	if reused > 0 {
		dst.logger.Debug("graph: clone merged existing nodes", "from", src.Name, "count", reused)
	}
	return old2new
}

// SubGraph copies the part of g reachable from roots into a new graph.
// #Start, #End and MEMORY are carried along when reachable. Lattice refs
// stay valid in the copy.
func (g *Graph) SubGraph(roots []NodeID, name string) (*Graph, map[NodeID]NodeID) {
	keep := g.Reachable(roots)
	out := New(g.pool, name, g.cloneOptions()...)
	old2new := make(map[NodeID]NodeID, len(keep))
	for _, n := range g.Nodes() {
		if !keep[n.ID] {
			continue
		}
		ref := n.Ref
		if out.PG == nil {
			ref = pni.NoRef
		}
		id := out.addNode(n.Key, ref)
		old2new[n.ID] = id
		switch n.ID {
		case g.start:
			out.start = id
		case g.end:
			out.end = id
		case g.memory:
			out.memory = id
		}
	}
	if out.PG != nil && g.PG != nil {
		out.PG = g.PG.Clone(func(id NodeID) (NodeID, bool) {
			n, ok := old2new[id]
			return n, ok
		})
	}
	for _, n := range g.Nodes() {
		from, ok := old2new[n.ID]
		if !ok {
			continue
		}
		for _, e := range n.Out() {
			if to, ok := old2new[e.To]; ok {
				out.OnlyAddEdge(from, to, e.Label)
			}
		}
		if n.dual != NoNode {
			if nd, ok := old2new[n.dual]; ok {
				out.nodes[from].dual = nd
			}
		}
	}
	for id := range g.StartNodes {
		if nid, ok := old2new[id]; ok {
			out.StartNodes[nid] = true
		}
	}
	for id := range g.EndNodes {
		if nid, ok := old2new[id]; ok {
			out.EndNodes[nid] = true
		}
	}
	out.layerSplit = g.layerSplit
	out.sketchSplit = g.sketchSplit
	return out, old2new
}
