package graph

import "slices"

// EdgeFilter selects the edges an algorithm follows. Nil follows all.
type EdgeFilter func(Edge) bool

// OnlyOne follows One edges.
func OnlyOne(e Edge) bool { return e.Label.IsOne() }

// SCCs finds strongly connected components using Tarjan's algorithm.
//
// Components come out in reverse topological order: a component is emitted
// after every component it reaches. Node ids inside a component are sorted.
func (g *Graph) SCCs(follow EdgeFilter) [][]NodeID {
	var (
		index   = 0
		stack   []NodeID
		indices = make(map[NodeID]int)
		lowlink = make(map[NodeID]int)
		onStack = make(map[NodeID]bool)
		sccs    [][]NodeID
	)

	var strongConnect func(NodeID)
	strongConnect = func(v NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.nodes[v].Out() {
			if follow != nil && !follow(e) {
				continue
			}
			w := e.To
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, n := range g.Nodes() {
		if _, visited := indices[n.ID]; !visited {
			strongConnect(n.ID)
		}
	}
	return sccs
}

// HasSelfLoop reports whether id has an edge to itself that follow accepts.
func (g *Graph) HasSelfLoop(id NodeID, follow EdgeFilter) bool {
	for _, e := range g.nodes[id].Out() {
		if e.To == id && (follow == nil || follow(e)) {
			return true
		}
	}
	return false
}
