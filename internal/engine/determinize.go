package engine

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// nodeSet is a sorted set of node ids of one graph.
type nodeSet []graph.NodeID

func (s nodeSet) key() string {
	var b strings.Builder
	for i, id := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(id)))
	}
	return b.String()
}

// oneClosure returns the seeds and every node they reach over One edges.
// Primitive nodes are included but never expanded.
func oneClosure(g *graph.Graph, seeds []graph.NodeID) nodeSet {
	seen := make(map[graph.NodeID]bool, len(seeds))
	stack := slices.Clone(seeds)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if g.IsPrimitive(id) {
			continue
		}
		for _, e := range g.Node(id).Out() {
			if e.Label.IsOne() && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	out := make(nodeSet, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// offsetReach is a node reached through offset edges at a given offset.
type offsetReach struct {
	node graph.NodeID
	off  schema.OffsetRange
}

// reachableOffsets walks One and offset recall edges breadth first from
// id and returns the nodes first reached at a nonzero offset.
func reachableOffsets(g *graph.Graph, id graph.NodeID) []offsetReach {
	visited := map[graph.NodeID]bool{id: true}
	queue := []offsetReach{{node: id}}
	var out []offsetReach
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Node(cur.node).Out() {
			var off schema.OffsetRange
			switch {
			case e.Label.IsOne():
				off = cur.off
			case e.Label.IsRecall() && e.Label.Field.IsOffset():
				off = cur.off.Add(e.Label.Field.Range)
			default:
				continue
			}
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			next := offsetReach{node: e.To, off: off}
			if !off.IsZero() {
				out = append(out, next)
			}
			queue = append(queue, next)
		}
	}
	return out
}

// isStepLabel reports whether the determinizer moves on l. One and offset
// edges are folded into the state sets instead.
func isStepLabel(l graph.EdgeLabel) bool {
	if l.IsOne() {
		return false
	}
	return !(l.HasField() && l.Field.IsOffset())
}

// transition is the set of targets a state reaches on one label at one
// offset.
type transition struct {
	off     schema.OffsetRange
	label   graph.EdgeLabel
	targets []graph.NodeID
}

func outTransitions(g *graph.Graph, set nodeSet) []*transition {
	byKey := make(map[string]*transition)
	add := func(off schema.OffsetRange, l graph.EdgeLabel, to graph.NodeID) {
		k := off.String() + "|" + l.String()
		t, ok := byKey[k]
		if !ok {
			t = &transition{off: off, label: l}
			byKey[k] = t
		}
		t.targets = append(t.targets, to)
	}
	for _, id := range set {
		for _, e := range g.Node(id).Out() {
			if isStepLabel(e.Label) {
				add(schema.OffsetRange{}, e.Label, e.To)
			}
		}
		for _, r := range reachableOffsets(g, id) {
			for _, e := range g.Node(r.node).Out() {
				if isStepLabel(e.Label) {
					add(r.off, e.Label, e.To)
				}
			}
		}
	}
	out := make([]*transition, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *transition) int {
		if c := a.off.Compare(b.off); c != 0 {
			return c
		}
		return a.label.Compare(b.label)
	})
	return out
}

type dstate struct {
	set  nodeSet
	node graph.NodeID
}

// determinizer runs the subset construction of one generator against a
// backup copy of its graph.
type determinizer struct {
	gen    *Generator
	src    *graph.Graph
	dtrans map[string]graph.NodeID
	offTmp map[string]graph.NodeID
	queue  *workQueue[dstate]
}

// Determinize rebuilds the graph as a deterministic automaton. Each value
// node becomes the state of the One closure of its old node; states are
// connected by the labels leaving their members, where fields at a
// nonzero offset go through an intermediate `offtmp_` node. New states are
// named `dtm_N`. The cells of every state's members are unified.
func (g *Generator) Determinize() error {
	cg := g.CG
	bak, old2bak := cg.Clone()

	keep := make(map[graph.NodeID]bool, len(g.V2N)+len(g.V2NContra))
	for _, id := range g.V2N {
		keep[id] = true
	}
	for _, id := range g.V2NContra {
		keep[id] = true
	}
	for _, n := range cg.Nodes() {
		for _, e := range n.Out() {
			cg.RemoveEdge(e.From, e.To, e.Label)
		}
	}
	for _, n := range cg.Nodes() {
		if cg.IsSpecial(n.ID) || keep[n.ID] {
			continue
		}
		if err := cg.RemoveNode(n.ID); err != nil {
			return fmt.Errorf("determinize %s: %w", g.Name, err)
		}
	}

	d := &determinizer{
		gen:    g,
		src:    bak,
		dtrans: make(map[string]graph.NodeID),
		offTmp: make(map[string]graph.NodeID),
		queue:  newWorkQueue[dstate](),
	}
	if bak.HasEnd() {
		d.dtrans[nodeSet{bak.End()}.key()] = cg.End()
	}
	if mem := bak.Lookup(graph.Key(g.ctx.Pool.Memory())); mem != graph.NoNode {
		d.start(mem, cg.Memory(schema.Covariant))
	}
	for _, v := range g.Values() {
		if id, ok := g.V2N[v]; ok {
			d.start(old2bak[id], id)
		}
		if id, ok := g.V2NContra[v]; ok {
			d.start(old2bak[id], id)
		}
	}
	d.run()

	for _, n := range cg.Nodes() {
		if cg.IsSpecial(n.ID) || n.InDegree() > 0 || n.OutDegree() > 0 || g.isMapped(n.ID) {
			continue
		}
		if err := cg.RemoveNode(n.ID); err != nil {
			return fmt.Errorf("determinize %s: drop unused state: %w", g.Name, err)
		}
	}
	for call, p := range g.CallToInstance {
		if cg.Node(p.Co) == nil || cg.Node(p.Contra) == nil {
			delete(g.CallToInstance, call)
		}
	}
	g.ctx.Logger.Debug("engine: determinized", "graph", g.Name, "states", len(d.dtrans), "nodes", cg.Len())
	return nil
}

// start registers dst as the state of the closure of src. A value whose
// closure already has a state is repointed to it.
func (d *determinizer) start(src, dst graph.NodeID) {
	set := oneClosure(d.src, []graph.NodeID{src})
	k := set.key()
	if have, ok := d.dtrans[k]; ok {
		if have != dst {
			d.gen.replaceNode(dst, have)
		}
		return
	}
	d.dtrans[k] = dst
	d.unifyCells(dst, set)
	d.queue.Push(dstate{set: set, node: dst})
}

func (d *determinizer) run() {
	cg := d.gen.CG
	for {
		st, ok := d.queue.Pop()
		if !ok {
			return
		}
		for _, t := range outTransitions(d.src, st.set) {
			to := d.target(t.targets)
			from := st.node
			if !t.off.IsZero() {
				from = d.offsetNode(st.node, t.off)
			}
			cg.OnlyAddEdge(from, to, t.label)
		}
	}
}

// target returns the state of the closure of targets, creating it when new.
func (d *determinizer) target(targets []graph.NodeID) graph.NodeID {
	cg := d.gen.CG
	set := oneClosure(d.src, targets)
	if d.src.HasEnd() && slices.Contains(set, d.src.End()) {
		return cg.End()
	}
	k := set.key()
	if id, ok := d.dtrans[k]; ok {
		return id
	}
	id := d.gen.newNode("dtm_", pni.NewCell(pni.Unknown, d.gen.ctx.PointerSize))
	d.dtrans[k] = id
	d.unifyCells(id, set)
	d.queue.Push(dstate{set: set, node: id})
	return id
}

// offsetNode returns the node standing for from at offset off.
func (d *determinizer) offsetNode(from graph.NodeID, off schema.OffsetRange) graph.NodeID {
	k := strconv.Itoa(int(from)) + off.String()
	if id, ok := d.offTmp[k]; ok {
		return id
	}
	id := d.gen.newNode("offtmp_", pni.NewCell(pni.Pointer, d.gen.ctx.PointerSize))
	d.gen.CG.OnlyAddEdge(from, id, graph.Recall(schema.Offset(off)))
	d.offTmp[k] = id
	return id
}

// unifyCells merges the cells of the members of set into the cell of id.
func (d *determinizer) unifyCells(id graph.NodeID, set nodeSet) {
	cg := d.gen.CG
	ref := cg.Node(id).Ref
	if cg.PG == nil || ref == pni.NoRef {
		return
	}
	for _, m := range set {
		if d.src.IsStartOrEnd(m) {
			continue
		}
		cg.PG.Unify(ref, cg.PG.NewCell(d.src.Cell(m)))
	}
	if c := cg.PG.Cell(ref); c.Conflict {
		d.gen.ctx.Logger.Warn("engine: conflicting cells in determinized state",
			"graph", d.gen.Name, "node", cg.Node(id).Key.String(), "cell", c.String())
	}
}

// newNode adds a single node named prefix plus a fresh id.
func (g *Generator) newNode(prefix string, cell pni.Cell) graph.NodeID {
	ref := pni.NoRef
	if g.CG.PG != nil {
		ref = g.CG.PG.NewCell(cell)
	}
	id, _ := g.CG.AddNode(graph.Key(g.ctx.Pool.Var(g.ctx.Namer.Name(prefix))), ref)
	return id
}

// MergeAfterDeterminize merges two nodes that reach a common target on the
// same label when they have equal cells and identical out edges. Memory
// nodes are never merged. It returns the number of merges.
func (g *Generator) MergeAfterDeterminize() (int, error) {
	cg := g.CG
	merged := 0
	for {
		a, b, ok := g.findMergePair()
		if !ok {
			return merged, nil
		}
		if err := g.MergeNodeTo(b, a, false); err != nil {
			return merged, err
		}
		merged++
		cg.Logger().Debug("engine: merged equivalent nodes", "from", b, "to", a)
	}
}

func (g *Generator) findMergePair() (graph.NodeID, graph.NodeID, bool) {
	cg := g.CG
	for _, n := range cg.Nodes() {
		ins := n.In()
		for i := range ins {
			for j := i + 1; j < len(ins); j++ {
				a, b := ins[i].From, ins[j].From
				if a == b || !ins[i].Label.Equal(ins[j].Label) {
					continue
				}
				if cg.IsSpecial(a) || cg.IsSpecial(b) {
					continue
				}
				if !cg.Cell(a).Equal(cg.Cell(b)) || !sameOutEdges(cg, a, b) {
					continue
				}
				return a, b, true
			}
		}
	}
	return graph.NoNode, graph.NoNode, false
}

// sameOutEdges compares the out edges of a and b, treating a self loop on
// either as the same edge.
func sameOutEdges(g *graph.Graph, a, b graph.NodeID) bool {
	sig := func(id graph.NodeID) []string {
		var out []string
		for _, e := range g.Node(id).Out() {
			to := "self"
			if e.To != id {
				to = strconv.Itoa(int(e.To))
			}
			out = append(out, to+" "+e.Label.String())
		}
		slices.Sort(out)
		return out
	}
	return slices.Equal(sig(a), sig(b))
}

// MergeOnlySubtype merges every node whose single out edge is a One edge
// into that edge's target. Special and primitive nodes stay.
func (g *Generator) MergeOnlySubtype() (int, error) {
	cg := g.CG
	merged := 0
	for changed := true; changed; {
		changed = false
		for _, n := range cg.Nodes() {
			if cg.Node(n.ID) == nil || cg.IsSpecial(n.ID) || cg.IsPrimitive(n.ID) {
				continue
			}
			outs := n.Out()
			if len(outs) != 1 || !outs[0].Label.IsOne() {
				continue
			}
			to := outs[0].To
			if to == n.ID || cg.IsSpecial(to) || cg.IsPrimitive(to) {
				continue
			}
			if err := g.MergeNodeTo(n.ID, to, false); err != nil {
				return merged, err
			}
			merged++
			changed = true
		}
	}
	return merged, nil
}

// LinkContraToCovariant adds a One edge from the contravariant node of
// every value to its covariant node.
func (g *Generator) LinkContraToCovariant() {
	for _, v := range g.Values() {
		co, ok1 := g.V2N[v]
		contra, ok2 := g.V2NContra[v]
		if ok1 && ok2 && co != contra {
			g.CG.AddEdge(contra, co, graph.One())
		}
	}
}

// GraphNode names a node of a specific graph.
type GraphNode struct {
	G  *graph.Graph
	ID graph.NodeID
}

// multiSet is a sorted set of nodes across several graphs.
type multiSet []GraphNode

type mstate struct {
	set  multiSet
	node graph.NodeID
}

type multiDeterminizer struct {
	dst    *Generator
	prefix string
	gidx   map[*graph.Graph]int
	dtrans map[string]graph.NodeID
	queue  *workQueue[mstate]
}

// MultiGraphDeterminizeTo runs the subset construction over nodes of
// several graphs at once and writes the result into g. Recall edges are
// copied together with the matching forget edge back; a primitive leaving
// to #End gets the base edges on both sides. New nodes are named prefix
// plus a fresh id. It returns the state of starts, or NoNode when starts
// is empty.
func (g *Generator) MultiGraphDeterminizeTo(starts []GraphNode, prefix string) graph.NodeID {
	m := &multiDeterminizer{
		dst:    g,
		prefix: prefix,
		gidx:   make(map[*graph.Graph]int),
		dtrans: make(map[string]graph.NodeID),
		queue:  newWorkQueue[mstate](),
	}
	for _, s := range starts {
		if _, ok := m.gidx[s.G]; !ok {
			m.gidx[s.G] = len(m.gidx)
		}
	}
	set := m.closure(starts)
	if len(set) == 0 {
		return graph.NoNode
	}
	first := m.state(set)
	m.run()
	return first
}

func (m *multiDeterminizer) closure(seeds []GraphNode) multiSet {
	byGraph := make(map[*graph.Graph][]graph.NodeID)
	var order []*graph.Graph
	for _, s := range seeds {
		if _, ok := byGraph[s.G]; !ok {
			order = append(order, s.G)
		}
		byGraph[s.G] = append(byGraph[s.G], s.ID)
	}
	var out multiSet
	for _, g := range order {
		for _, id := range oneClosure(g, byGraph[g]) {
			out = append(out, GraphNode{G: g, ID: id})
		}
	}
	slices.SortFunc(out, func(a, b GraphNode) int {
		if c := cmp.Compare(m.gidx[a.G], m.gidx[b.G]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (m *multiDeterminizer) key(set multiSet) string {
	var b strings.Builder
	for i, n := range set {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(m.gidx[n.G]))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(n.ID)))
	}
	return b.String()
}

func (m *multiDeterminizer) state(set multiSet) graph.NodeID {
	cg := m.dst.CG
	for _, n := range set {
		if n.G.HasEnd() && n.ID == n.G.End() {
			return cg.End()
		}
	}
	k := m.key(set)
	if id, ok := m.dtrans[k]; ok {
		return id
	}
	id := m.dst.newNode(m.prefix, pni.NewCell(pni.Unknown, m.dst.ctx.PointerSize))
	if ref := cg.Node(id).Ref; cg.PG != nil && ref != pni.NoRef {
		for _, n := range set {
			if n.G.IsStartOrEnd(n.ID) {
				continue
			}
			cg.PG.Unify(ref, cg.PG.NewCell(n.G.Cell(n.ID)))
		}
	}
	m.dtrans[k] = id
	m.queue.Push(mstate{set: set, node: id})
	return id
}

func (m *multiDeterminizer) run() {
	cg := m.dst.CG
	for {
		st, ok := m.queue.Pop()
		if !ok {
			return
		}
		type group struct {
			label   graph.EdgeLabel
			targets []GraphNode
		}
		groups := make(map[string]*group)
		for _, n := range st.set {
			for _, e := range n.G.Node(n.ID).Out() {
				l := e.Label
				switch {
				case l.IsForgetBase():
					cg.AddEdge(st.node, cg.End(), l)
					cg.AddEdge(cg.Start(), st.node, graph.RecallBase(l.Base, l.Variance))
				case l.IsRecall():
					grp, ok := groups[l.String()]
					if !ok {
						grp = &group{label: l}
						groups[l.String()] = grp
					}
					grp.targets = append(grp.targets, GraphNode{G: n.G, ID: e.To})
				}
			}
		}
		for _, k := range sortedKeys(groups) {
			grp := groups[k]
			to := m.state(m.closure(grp.targets))
			cg.AddEdge(st.node, to, grp.label)
			if to != cg.End() {
				cg.AddEdge(to, st.node, graph.Forget(grp.label.Field))
			}
		}
	}
}
