package layout

import (
	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// MergeArrayUnions collapses every two-member union of an array and a
// member as large as one array element into the array. The union node
// keeps its identity and takes over the array layout; the other member is
// merged into the element. m merges graph nodes; nil merges directly in
// the graph. It returns the number of unions collapsed and is idempotent.
func (l *Layouts) MergeArrayUnions(m Merger) (int, error) {
	if m == nil {
		m = l.g
	}
	merged := 0
	for {
		un, arr, other, ok := l.findArrayUnion()
		if !ok {
			break
		}
		if err := l.collapse(m, un, arr, other); err != nil {
			return merged, err
		}
		merged++
	}
	if merged > 0 {
		l.logger.Debug("layout: merged array unions", "graph", l.g.Name, "count", merged)
	}
	return merged, nil
}

func (l *Layouts) findArrayUnion() (un, arr, other graph.NodeID, ok bool) {
	for _, id := range l.Nodes() {
		info := l.infos[id]
		if info.Kind != KindUnion || len(info.Members) != 2 {
			continue
		}
		m0, m1 := info.Members[0], info.Members[1]
		i0, ok0 := l.infos[m0]
		i1, ok1 := l.infos[m1]
		if !ok0 || !ok1 {
			continue
		}
		switch {
		case i0.Kind == KindArray && i1.Kind == KindArray:
			continue
		case i0.Kind == KindArray && i0.ElemSize == i1.Size:
			return id, m0, m1, true
		case i1.Kind == KindArray && i1.ElemSize == i0.Size:
			return id, m1, m0, true
		}
	}
	return graph.NoNode, graph.NoNode, graph.NoNode, false
}

func (l *Layouts) collapse(m Merger, un, arr, other graph.NodeID) error {
	g := l.g
	for _, e := range g.Node(un).Out() {
		g.RemoveEdge(e.From, e.To, e.Label)
	}
	info := l.infos[arr].Clone()
	info.Merged = true
	delete(l.infos, arr)
	if err := l.merge(m, arr, un); err != nil {
		return err
	}
	l.infos[un] = info
	return l.mergeTyped(m, other, info.Target)
}

// merge merges from into to in the graph and repoints the layouts.
func (l *Layouts) merge(m Merger, from, to graph.NodeID) error {
	if err := m.MergeNodeTo(from, to, false); err != nil {
		return err
	}
	for _, info := range l.infos {
		info.replace(from, to)
	}
	return nil
}

// mergeTyped merges from into to when their layouts are compatible, then
// merges the targets to reaches twice on one label.
func (l *Layouts) mergeTyped(m Merger, from, to graph.NodeID) error {
	if from == to {
		return nil
	}
	fi, hasFrom := l.infos[from]
	ti, hasTo := l.infos[to]
	switch {
	case !hasFrom:
	case hasTo && fi.Kind == ti.Kind && (fi.Kind == KindSimple || fi.Kind == KindStruct):
	default:
		l.logger.Warn("layout: cannot merge layouts",
			"graph", l.g.Name, "from", l.g.Node(from).Key.String(), "to", l.g.Node(to).Key.String())
		return nil
	}
	delete(l.infos, from)
	if !hasTo && hasFrom {
		l.infos[to] = fi
	}
	if err := l.merge(m, from, to); err != nil {
		return err
	}

	byLabel := make(map[string][]graph.NodeID)
	var order []string
	for _, e := range l.g.Node(to).Out() {
		k := e.Label.String()
		if _, ok := byLabel[k]; !ok {
			order = append(order, k)
		}
		byLabel[k] = append(byLabel[k], e.To)
	}
	for _, k := range order {
		targets := byLabel[k]
		if len(targets) < 2 {
			continue
		}
		keep := targets[0]
		for _, t := range targets[1:] {
			if l.g.Node(t) == nil || l.g.Node(keep) == nil {
				continue
			}
			a, b := t, keep
			if _, ok := l.infos[a]; ok {
				if _, ok := l.infos[b]; !ok {
					a, b = b, a
				}
			}
			if err := l.mergeTyped(m, a, b); err != nil {
				return err
			}
			keep = b
		}
	}
	return nil
}
