package rexp

import (
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// PathEntry is one step of a path sequence: the expression of the paths
// from From to To.
type PathEntry struct {
	From graph.NodeID
	To   graph.NodeID
	Expr *Expr
}

type nodePair struct{ from, to graph.NodeID }

// Eliminate runs Gauss-style elimination over the nodes of one strongly
// connected component and returns the resulting path sequence: entries with
// an ascending (or equal) node index first, sorted by source index, then
// the descending ones.
func Eliminate(g *graph.Graph, scc []graph.NodeID) []PathEntry {
	nodes := slices.Clone(scc)
	slices.Sort(nodes)
	index := make(map[graph.NodeID]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	p := make(map[nodePair]*Expr)
	get := func(a, b graph.NodeID) *Expr {
		if e, ok := p[nodePair{a, b}]; ok {
			return e
		}
		return nullExpr
	}
	for _, n := range nodes {
		for _, e := range g.Node(n).Out() {
			if _, in := index[e.To]; !in {
				continue
			}
			l := Label(e.Label)
			key := nodePair{n, e.To}
			if old, ok := p[key]; ok {
				p[key] = newOr([]*Expr{old, l})
			} else {
				p[key] = l
			}
		}
	}

	for vi, v := range nodes {
		vv := get(v, v)
		if !vv.IsNull() {
			vv = Simplify(Star(vv))
			p[nodePair{v, v}] = vv
		}
		for _, u := range nodes[vi+1:] {
			uv := get(u, v)
			if uv.IsNull() {
				continue
			}
			if !vv.IsNull() {
				uv = Simplify(Concat(uv, vv))
				p[nodePair{u, v}] = uv
			}
			for _, w := range nodes[vi+1:] {
				vw := get(v, w)
				if vw.IsNull() {
					continue
				}
				uw := get(u, w)
				p[nodePair{u, w}] = Simplify(Union(uw, Simplify(Concat(uv, vw))))
			}
		}
	}

	var asc, desc []PathEntry
	for k, e := range p {
		if e.IsNull() {
			continue
		}
		entry := PathEntry{From: k.from, To: k.to, Expr: e}
		if index[k.from] <= index[k.to] {
			asc = append(asc, entry)
		} else {
			desc = append(desc, entry)
		}
	}
	slices.SortFunc(asc, func(a, b PathEntry) int {
		if c := index[a.From] - index[b.From]; c != 0 {
			return c
		}
		return index[a.To] - index[b.To]
	})
	slices.SortFunc(desc, func(a, b PathEntry) int {
		if c := index[b.From] - index[a.From]; c != 0 {
			return c
		}
		return index[a.To] - index[b.To]
	})
	return append(asc, desc...)
}

// PathSequence builds the path sequence of the whole graph: components in
// topological order, each eliminated when it is a cycle, followed by the
// edges leaving it.
func PathSequence(g *graph.Graph) []PathEntry {
	sccs := g.SCCs(nil)
	var seq []PathEntry
	for i := len(sccs) - 1; i >= 0; i-- {
		scc := sccs[i]
		if len(scc) > 1 || g.HasSelfLoop(scc[0], nil) {
			seq = append(seq, Eliminate(g, scc)...)
		}
		in := make(map[graph.NodeID]bool, len(scc))
		for _, n := range scc {
			in[n] = true
		}
		for _, n := range scc {
			for _, e := range g.Node(n).Out() {
				if !in[e.To] {
					seq = append(seq, PathEntry{From: n, To: e.To, Expr: Label(e.Label)})
				}
			}
		}
	}
	return seq
}

// Paths holds the solved path expressions from one source.
type Paths struct {
	source graph.NodeID
	exprs  map[graph.NodeID]*Expr
}

// Solve evaluates a path sequence from source.
func Solve(source graph.NodeID, seq []PathEntry) *Paths {
	ps := &Paths{source: source, exprs: make(map[graph.NodeID]*Expr)}
	for _, ent := range seq {
		if ent.From == ent.To {
			ps.set(ent.From, Simplify(Concat(ps.To(ent.From), ent.Expr)))
			continue
		}
		through := Simplify(Concat(ps.To(ent.From), ent.Expr))
		ps.set(ent.To, Simplify(Union(ps.To(ent.To), through)))
	}
	return ps
}

// To returns the expression of the paths from the source to n.
func (ps *Paths) To(n graph.NodeID) *Expr {
	if e, ok := ps.exprs[n]; ok {
		return e
	}
	if n == ps.source {
		return emptyExpr
	}
	return nullExpr
}

func (ps *Paths) set(n graph.NodeID, e *Expr) {
	if n == ps.source && e.IsEmpty() {
		return
	}
	if n != ps.source && e.IsNull() {
		return
	}
	ps.exprs[n] = e
}
