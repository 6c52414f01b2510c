package engine

import (
	"slices"
	"strconv"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// Minimize merges the states of a determinized graph that no sequence of
// labels tells apart. It refines the partition by cell until every class
// agrees on (label, target class) for all its members, then merges each
// class into its smallest node. Special nodes keep a class of their own.
func (g *Generator) Minimize() (int, error) {
	cg := g.CG
	nodes := cg.Nodes()

	class := make(map[graph.NodeID]int, len(nodes))
	initial := make(map[graph.NodeID]string, len(nodes))
	for _, n := range nodes {
		if cg.IsSpecial(n.ID) {
			initial[n.ID] = "special " + strconv.Itoa(int(n.ID))
		} else {
			initial[n.ID] = cg.Cell(n.ID).String()
		}
	}
	count := renumber(nodes, initial, class)

	for {
		sig := make(map[graph.NodeID]string, len(nodes))
		for _, n := range nodes {
			var b strings.Builder
			b.WriteString(strconv.Itoa(class[n.ID]))
			var outs []string
			for _, e := range n.Out() {
				outs = append(outs, e.Label.String()+">"+strconv.Itoa(class[e.To]))
			}
			slices.Sort(outs)
			for _, o := range outs {
				b.WriteByte('|')
				b.WriteString(o)
			}
			sig[n.ID] = b.String()
		}
		next := renumber(nodes, sig, class)
		if next == count {
			break
		}
		count = next
	}

	reps := make(map[int]graph.NodeID)
	merged := 0
	for _, n := range nodes {
		c := class[n.ID]
		rep, ok := reps[c]
		if !ok {
			reps[c] = n.ID
			continue
		}
		if err := g.MergeNodeTo(n.ID, rep, false); err != nil {
			return merged, err
		}
		merged++
	}
	g.ctx.Logger.Debug("engine: minimized", "graph", g.Name, "classes", count, "merged", merged)
	return merged, nil
}

// renumber assigns class ids by sorted signature and returns the number of
// classes.
func renumber(nodes []*graph.Node, sig map[graph.NodeID]string, class map[graph.NodeID]int) int {
	distinct := make([]string, 0, len(nodes))
	for _, n := range nodes {
		distinct = append(distinct, sig[n.ID])
	}
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	ids := make(map[string]int, len(distinct))
	for i, s := range distinct {
		ids[s] = i
	}
	for _, n := range nodes {
		class[n.ID] = ids[sig[n.ID]]
	}
	return len(distinct)
}
