package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteDot renders the graph in Graphviz dot syntax. Node labels carry the
// key and, when a lattice is attached, the cell.
func (g *Graph) WriteDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", strconv.Quote(g.Name))
	for _, n := range g.Nodes() {
		label := n.Key.String()
		if g.PG != nil && n.Ref >= 0 {
			label += "\n" + g.Cell(n.ID).String()
		}
		fmt.Fprintf(bw, "  n%d [label=%s];\n", n.ID, strconv.Quote(label))
	}
	for _, n := range g.Nodes() {
		for _, e := range n.Out() {
			fmt.Fprintf(bw, "  n%d -> n%d [label=%s];\n", e.From, e.To, strconv.Quote(e.Label.String()))
		}
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// WriteText renders one line per edge, `from -label-> to`, ordered by
// source node. Isolated nodes are listed on their own.
func (g *Graph) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, n := range g.Nodes() {
		out := n.Out()
		if len(out) == 0 && n.InDegree() == 0 {
			fmt.Fprintf(bw, "%s\n", n.Key)
			continue
		}
		for _, e := range out {
			fmt.Fprintf(bw, "%s -%s-> %s\n", n.Key, e.Label, g.nodes[e.To].Key)
		}
	}
	return bw.Flush()
}

// String renders the graph with WriteText.
func (g *Graph) String() string {
	var sb strings.Builder
	_ = g.WriteText(&sb)
	return sb.String()
}

// Constraints reads the subtype relations back off the One edges.
func (g *Graph) Constraints() []string {
	var out []string
	for _, n := range g.Nodes() {
		if g.IsStartOrEnd(n.ID) {
			continue
		}
		for _, e := range n.Out() {
			if e.Label.IsOne() && !g.IsStartOrEnd(e.To) {
				out = append(out, fmt.Sprintf("%s <= %s", n.Key, g.nodes[e.To].Key))
			}
		}
	}
	return out
}
