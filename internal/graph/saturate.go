package graph

import (
	"time"

	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// SaturateOptions controls Saturate.
type SaturateOptions struct {
	// Disable skips saturation entirely.
	Disable bool

	// NoPointerRule disables the S-Pointer rule.
	NoPointerRule bool

	// Budget bounds the rounds and wall time. Nil means unlimited.
	Budget *Budget

	// Strict turns an exhausted budget into an error instead of a
	// warning.
	Strict bool
}

// reach is an element of a reaching set: node n reaches the owner through
// a path that forgot label l last.
type reach struct {
	label schema.FieldLabel
	node  NodeID
}

type reachKey struct {
	label string
	node  NodeID
}

// reachSet keeps insertion order so saturation is deterministic.
type reachSet struct {
	items []reach
	seen  map[reachKey]bool
}

func (s *reachSet) add(r reach) bool {
	k := reachKey{r.label.String(), r.node}
	if s.seen == nil {
		s.seen = make(map[reachKey]bool)
	}
	if s.seen[k] {
		return false
	}
	s.seen[k] = true
	s.items = append(s.items, r)
	return true
}

type saturation struct {
	g     *Graph
	reach map[NodeID]*reachSet
	queue []NodeID
	inQ   map[NodeID]bool
}

func (s *saturation) set(id NodeID) *reachSet {
	rs := s.reach[id]
	if rs == nil {
		rs = &reachSet{}
		s.reach[id] = rs
	}
	return rs
}

func (s *saturation) push(id NodeID) {
	if !s.inQ[id] {
		s.inQ[id] = true
		s.queue = append(s.queue, id)
	}
}

// seed inserts (l, src) into the reaching set of tgt for every forget edge
// src -Forget(l)-> tgt. It runs every round so that offset edges created by
// lattice solving take part.
func (s *saturation) seed() bool {
	changed := false
	for _, n := range s.g.Nodes() {
		for _, e := range n.Out() {
			if !e.Label.IsForget() {
				continue
			}
			if s.set(e.To).add(reach{e.Label.Field, e.From}) {
				s.push(e.To)
				changed = true
			}
		}
	}
	return changed
}

// propagate closes the reaching sets over One edges.
func (s *saturation) propagate() {
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.inQ, id)
		src := s.reach[id]
		if src == nil || s.g.Node(id) == nil {
			continue
		}
		for _, e := range s.g.nodes[id].Out() {
			if !e.Label.IsOne() {
				continue
			}
			dst := s.set(e.To)
			grew := false
			for _, r := range src.items {
				if dst.add(r) {
					grew = true
				}
			}
			if grew {
				s.push(e.To)
			}
		}
	}
}

// Saturate closes the graph under the transitivity and field rules: a
// value that reaches T after forgetting l, where T recalls l into U, is a
// subtype of U. Lattice solving is interleaved with saturation since each
// feeds the other.
func (g *Graph) Saturate(opts SaturateOptions) error {
	if opts.Disable {
		g.logger.Info("graph: saturation disabled")
		return nil
	}
	began := time.Now()
	g.SolvePNI()

	s := &saturation{g: g, reach: make(map[NodeID]*reachSet), inQ: make(map[NodeID]bool)}
	s.seed()
	s.propagate()

	rounds := 0
	for changed := true; changed; {
		changed = false
		rounds++
		if opts.Budget != nil {
			if err := opts.Budget.Check(g.Name); err != nil {
				g.logger.Warn("graph: saturation stopped early", "error", err.Error())
				if opts.Strict {
					return err
				}
				break
			}
		}
		if s.seed() {
			s.propagate()
		}
		for _, n := range g.Nodes() {
			rs := s.reach[n.ID]
			if rs == nil || len(rs.items) == 0 {
				continue
			}
			for _, e := range n.Out() {
				if !e.Label.IsRecall() {
					continue
				}
				if g.applyRecall(s, rs, e) {
					changed = true
				}
				s.propagate()
			}
		}
		if !opts.NoPointerRule && g.applyPointerRule(s) {
			changed = true
		}
		s.propagate()
		if g.SolvePNI() {
			changed = true
		}
	}
	g.logger.Debug("graph: saturation finished",
		"rounds", rounds, "nodes", g.Len(), "edges", g.EdgeCount(), "elapsed", time.Since(began))
	return nil
}

// applyRecall handles S -Recall(l)-> T against the reaching set of S.
func (g *Graph) applyRecall(s *saturation, rs *reachSet, e Edge) bool {
	changed := false
	l := e.Label.Field
	// rs may grow while adding edges; iterate the snapshot.
	items := rs.items[:len(rs.items):len(rs.items)]
	for _, r := range items {
		if r.label.Equal(l) {
			if r.node == e.To || g.canReachByOne(r.node, e.To) {
				continue
			}
			g.AddEdge(r.node, e.To, One())
			if src := s.reach[r.node]; src != nil {
				dst := s.set(e.To)
				for _, x := range src.items {
					dst.add(x)
				}
			}
			s.push(e.To)
			changed = true
			continue
		}
		if l.IsLoad() && r.label.IsStore() && r.label.Size == l.Size && r.node != e.To {
			a, b := g.nodes[r.node].Ref, g.nodes[e.To].Ref
			if g.PG != nil && a != pni.NoRef && b != pni.NoRef && !g.PG.Same(a, b) {
				g.PG.Unify(a, b)
			}
		}
	}
	return changed
}

// applyPointerRule is S-Pointer: a store reaching a contravariant node is
// a load on its dual, and a load a store.
func (g *Graph) applyPointerRule(s *saturation) bool {
	changed := false
	for _, n := range g.Nodes() {
		if n.Key.Variance != schema.Contravariant || n.dual == NoNode {
			continue
		}
		rs := s.reach[n.ID]
		if rs == nil {
			continue
		}
		dual := s.set(n.dual)
		items := rs.items[:len(rs.items):len(rs.items)]
		for _, r := range items {
			var flipped schema.FieldLabel
			switch {
			case r.label.IsStore():
				flipped = r.label.ToLoad()
			case r.label.IsLoad():
				flipped = r.label.ToStore()
			default:
				continue
			}
			if dual.add(reach{flipped, r.node}) {
				s.push(n.dual)
				changed = true
			}
		}
	}
	return changed
}

// canReachByOne reports whether to is reachable from from through One
// edges only.
func (g *Graph) canReachByOne(from, to NodeID) bool {
	seen := map[NodeID]bool{from: true}
	stack := []NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		for k, l := range g.nodes[id].out {
			if l.IsOne() && !seen[k.peer] {
				seen[k.peer] = true
				stack = append(stack, k.peer)
			}
		}
	}
	return false
}
