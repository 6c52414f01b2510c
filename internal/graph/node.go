package graph

import (
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/pni"
)

// edgeKey identifies an edge within one endpoint's edge set.
type edgeKey struct {
	peer  NodeID
	label string
}

// Node is a vertex of the constraint graph.
type Node struct {
	ID  NodeID
	Key NodeKey

	// Ref is the lattice cell, shared with the dual. pni.NoRef for
	// #Start, #End and nodes of graphs without a lattice.
	Ref pni.Ref

	dual NodeID
	out  map[edgeKey]EdgeLabel
	in   map[edgeKey]EdgeLabel
}

func newNode(id NodeID, key NodeKey, ref pni.Ref) *Node {
	return &Node{
		ID:   id,
		Key:  key,
		Ref:  ref,
		dual: NoNode,
		out:  make(map[edgeKey]EdgeLabel),
		in:   make(map[edgeKey]EdgeLabel),
	}
}

// Out returns the outgoing edges ordered by target and label.
func (n *Node) Out() []Edge {
	edges := make([]Edge, 0, len(n.out))
	for k, l := range n.out {
		edges = append(edges, Edge{From: n.ID, To: k.peer, Label: l})
	}
	sortEdges(edges, func(e Edge) NodeID { return e.To })
	return edges
}

// In returns the incoming edges ordered by source and label.
func (n *Node) In() []Edge {
	edges := make([]Edge, 0, len(n.in))
	for k, l := range n.in {
		edges = append(edges, Edge{From: k.peer, To: n.ID, Label: l})
	}
	sortEdges(edges, func(e Edge) NodeID { return e.From })
	return edges
}

// OutDegree returns the number of outgoing edges.
func (n *Node) OutDegree() int { return len(n.out) }

// InDegree returns the number of incoming edges.
func (n *Node) InDegree() int { return len(n.in) }

// Dual returns the id of the opposite variance node, or NoNode.
func (n *Node) Dual() NodeID { return n.dual }

func sortEdges(edges []Edge, peer func(Edge) NodeID) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if pa, pb := peer(a), peer(b); pa != pb {
			if pa < pb {
				return -1
			}
			return 1
		}
		return a.Label.Compare(b.Label)
	})
}
