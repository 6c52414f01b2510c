package engine

import (
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/layout"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// sketchSets is an index union-find over the node ids of one graph.
type sketchSets struct {
	parent map[graph.NodeID]graph.NodeID
}

func (s *sketchSets) find(id graph.NodeID) graph.NodeID {
	p, ok := s.parent[id]
	if !ok {
		return id
	}
	if p == id {
		return id
	}
	root := s.find(p)
	s.parent[id] = root
	return root
}

func (s *sketchSets) union(a, b graph.NodeID) bool {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return false
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	return true
}

// GenSketch groups the nodes of g into sketch nodes:
//
//  1. nodes joined by a One edge or a zero offset with equal cell sizes
//     share a node;
//  2. the targets of equal recall labels leaving one group share a node,
//     with stores read as loads;
//
// repeated until nothing changes. The result is a new generator whose
// graph holds one node per group and only recall and forget-base edges.
func GenSketch(g *Generator) (*Generator, error) {
	src := g.CG
	sets := &sketchSets{parent: make(map[graph.NodeID]graph.NodeID)}
	size := func(id graph.NodeID) uint32 { return src.Cell(id).Size }
	joinable := func(e graph.Edge) bool {
		if src.IsStartOrEnd(e.From) || src.IsStartOrEnd(e.To) || e.From == e.To {
			return false
		}
		if src.IsPrimitive(e.From) && src.IsPrimitive(e.To) {
			return false
		}
		switch {
		case e.Label.IsOne():
		case e.Label.HasField() && e.Label.Field.IsZeroOffset():
		default:
			return false
		}
		return size(e.From) == size(e.To)
	}

	for changed := true; changed; {
		changed = false
		for _, n := range src.Nodes() {
			for _, e := range n.Out() {
				if joinable(e) && sets.union(e.From, e.To) {
					changed = true
				}
			}
		}
		first := make(map[string]graph.NodeID)
		for _, n := range src.Nodes() {
			for _, e := range n.Out() {
				if !e.Label.IsRecall() || src.IsStartOrEnd(e.To) {
					continue
				}
				l := e.Label.Field
				if l.IsStore() {
					l = l.ToLoad()
				}
				k := fmt.Sprintf("%d|%s", sets.find(e.From), l)
				have, ok := first[k]
				if !ok {
					first[k] = e.To
					continue
				}
				if sets.union(have, e.To) {
					changed = true
				}
			}
		}
	}

	// Representatives: memory first, then the smallest id.
	rep := make(map[graph.NodeID]graph.NodeID)
	isMemory := func(id graph.NodeID) bool {
		return src.IsMemory(id) && src.Node(id).Key.Variance == schema.Covariant
	}
	for _, n := range src.Nodes() {
		root := sets.find(n.ID)
		r, ok := rep[root]
		switch {
		case !ok:
			rep[root] = n.ID
		case isMemory(r):
		case isMemory(n.ID) || n.ID < r:
			rep[root] = n.ID
		}
	}

	out := g.ctx.NewGenerator(g.Name+"-sketch", g.Funcs)
	dst := out.CG
	var off pni.Ref
	if dst.PG != nil && src.PG != nil {
		off = dst.PG.Absorb(src.PG, func(graph.NodeID) (graph.NodeID, bool) { return graph.NoNode, false })
	}
	srcRef := func(id graph.NodeID) pni.Ref {
		ref := src.Node(id).Ref
		if ref == pni.NoRef || dst.PG == nil {
			return pni.NoRef
		}
		return ref + off
	}

	cls := make(map[graph.NodeID]graph.NodeID)
	for _, n := range src.Nodes() {
		id := n.ID
		switch {
		case src.HasStart() && id == src.Start():
			cls[id] = dst.Start()
			continue
		case src.HasEnd() && id == src.End():
			cls[id] = dst.End()
			continue
		}
		r := rep[sets.find(id)]
		if to, ok := cls[r]; ok {
			cls[id] = to
			continue
		}
		to, err := dst.AddNode(src.Node(r).Key, srcRef(r))
		if err != nil {
			return nil, err
		}
		cls[r] = to
		cls[id] = to
	}
	if dst.Lookup(graph.Key(g.ctx.Pool.Memory())) != graph.NoNode {
		dst.Memory(schema.Covariant)
	}
	if dst.PG != nil {
		for _, n := range src.Nodes() {
			a, b := srcRef(n.ID), dst.Node(cls[n.ID]).Ref
			if a != pni.NoRef && b != pni.NoRef {
				dst.PG.Unify(b, a)
			}
		}
	}

	dropped := 0
	for _, n := range src.Nodes() {
		for _, e := range n.Out() {
			l := e.Label
			if l.IsForget() || l.IsRecallBase() {
				continue
			}
			if l.IsOne() && src.IsPrimitive(e.From) && src.IsPrimitive(e.To) {
				continue
			}
			if l.IsRecall() && l.Field.IsStore() {
				l = graph.Recall(l.Field.ToLoad())
			}
			from, to := cls[e.From], cls[e.To]
			if from == to && (l.IsOne() || (l.HasField() && l.Field.IsZeroOffset())) {
				continue
			}
			if l.IsOne() {
				dropped++
				continue
			}
			dst.OnlyAddEdge(from, to, l)
		}
	}
	if dropped > 0 {
		g.ctx.Logger.Debug("engine: sketch dropped subtype edges between sizes", "graph", g.Name, "count", dropped)
	}

	for v, id := range g.V2N {
		out.V2N[v] = cls[id]
	}
	for v, id := range g.V2NContra {
		out.V2NContra[v] = cls[id]
	}
	out.UnhandledCalls = append(out.UnhandledCalls, g.UnhandledCalls...)
	return out, nil
}

// Sketch is a post-processed generator together with its layouts.
type Sketch struct {
	Gen     *Generator
	Layouts *layout.Layouts
}

// PostProcess turns a copy of g into sketches at the given level and lays
// them out. g is left unchanged.
func (g *Generator) PostProcess(level int) (*Sketch, error) {
	work := g.Clone(g.Name + "-post")
	if work.CG.PG != nil {
		work.CG.PG.ClearConstraints()
	}

	var out *Generator
	switch level {
	case PostProcessSketch:
		s, err := GenSketch(work)
		if err != nil {
			return nil, err
		}
		if err := s.EliminateCycle(); err != nil {
			return nil, err
		}
		out = s
	case PostProcessDeterminize, PostProcessMinimize:
		work.CG.SketchSplit()
		work.CG.ChangeStoreToLoad()
		work.CG.OffsetZeroToOne()
		if err := work.EliminateCycle(); err != nil {
			return nil, err
		}
		if err := work.Determinize(); err != nil {
			return nil, err
		}
		if _, err := work.MergeAfterDeterminize(); err != nil {
			return nil, err
		}
		if level == PostProcessMinimize {
			if _, err := work.Minimize(); err != nil {
				return nil, err
			}
		}
		if err := work.EliminateCycle(); err != nil {
			return nil, err
		}
		out = work
	default:
		return nil, fmt.Errorf("postprocess level %d out of range 0-2", level)
	}

	lay, err := layout.OrganizeTypes(out.CG,
		layout.WithLogger(g.ctx.Logger),
		layout.WithNamer(g.ctx.Namer),
	)
	if err != nil {
		return nil, err
	}
	if _, err := lay.MergeArrayUnions(out); err != nil {
		return nil, err
	}
	return &Sketch{Gen: out, Layouts: lay}, nil
}
