package layout

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// Option configures OrganizeTypes.
type Option func(*Layouts)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Layouts) { o.logger = l }
}

// WithNamer sets the namer of the nodes the organizer creates.
func WithNamer(n *schema.Namer) Option {
	return func(o *Layouts) { o.namer = n }
}

// OrganizeTypes computes the layout of every pointer node of a sketch
// graph.
//
// The graph must contain only recall and base edges, with stores already
// turned into loads. Organizing rewrites the graph: loads of a struct are
// moved under `F0_` nodes at offset 0, strided accesses are grouped under
// `Field_` and `ArrElem_` nodes, and overlapping fields are moved under
// `Un_` union nodes whose panels become `Us_` structs. Memory nodes are
// always laid out as structs.
func OrganizeTypes(g *graph.Graph, opts ...Option) (*Layouts, error) {
	l := &Layouts{
		g:        g,
		logger:   slog.Default(),
		infos:    make(map[graph.NodeID]*TypeInfo),
		visiting: make(map[graph.NodeID]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.namer == nil {
		l.namer = schema.NewNamer()
	}
	if err := checkSketchEdges(g); err != nil {
		return nil, err
	}
	for _, n := range g.Nodes() {
		if g.Node(n.ID) == nil || !l.IsPointer(n.ID) {
			continue
		}
		if err := l.build(n.ID, g.IsMemory(n.ID)); err != nil {
			return nil, err
		}
	}
	l.logger.Debug("layout: organized types", "graph", g.Name, "layouts", len(l.infos))
	return l, nil
}

func checkSketchEdges(g *graph.Graph) error {
	for _, n := range g.Nodes() {
		for _, e := range n.Out() {
			var msg string
			switch {
			case e.Label.IsOne():
				msg = "sketch node has a one edge"
			case e.Label.IsForget():
				msg = "sketch node has a forget edge"
			case e.Label.IsRecall() && e.Label.Field.IsStore():
				msg = "sketch node has a store edge"
			default:
				continue
			}
			return &graph.InvariantError{
				Code:    graph.ErrCodeUnexpectedEdge,
				Message: msg,
				Graph:   g.Name,
				Node:    n.Key.String(),
				Details: map[string]string{"label": e.Label.String()},
			}
		}
	}
	return nil
}

func offsetLabel(off int64) graph.EdgeLabel {
	return graph.Recall(schema.ConstOffset(off))
}

func strideLabel(stride int64) graph.EdgeLabel {
	return graph.Recall(schema.Offset(schema.OffsetRange{Access: []schema.ArrayOffset{{Size: uint64(stride)}}}))
}

// newNode creates a node named prefix plus a fresh id that shares the
// cell of like.
func (l *Layouts) newNode(prefix string, like graph.NodeID) graph.NodeID {
	key := graph.Key(l.g.Pool().Var(l.namer.Name(prefix)))
	id, _ := l.g.AddNode(key, l.g.Node(like).Ref)
	return id
}

func (l *Layouts) build(n graph.NodeID, mustStruct bool) error {
	g := l.g
	if !l.IsPointer(n) {
		return nil
	}
	if _, done := l.infos[n]; done {
		return nil
	}
	if l.visiting[n] {
		return &graph.InvariantError{
			Code:    graph.ErrCodeLayoutCycle,
			Message: "type contains itself",
			Graph:   g.Name,
			Node:    g.Node(n).Key.String(),
		}
	}
	l.visiting[n] = true

	for _, e := range g.Node(n).Out() {
		if e.To == n && e.Label.IsRecall() && e.Label.Field.IsOffset() {
			g.RemoveEdge(e.From, e.To, e.Label)
		}
	}

	var offsets, loads []graph.Edge
	for _, e := range g.Node(n).Out() {
		if !e.Label.IsRecall() {
			continue
		}
		switch {
		case e.Label.Field.IsOffset():
			offsets = append(offsets, e)
		case e.Label.Field.IsLoad():
			loads = append(loads, e)
		}
	}

	if !mustStruct && len(offsets) == 0 && len(loads) <= 1 {
		info := &TypeInfo{Kind: KindSimple, Target: graph.NoNode}
		if len(loads) == 1 {
			info.Target = loads[0].To
			info.LoadBits = loads[0].Label.Field.Size
			info.Size = int64(info.LoadBits / 8)
		}
		l.infos[n] = info
		return nil
	}

	if !mustStruct && len(offsets) == 1 && len(loads) == 0 {
		r := offsets[0].Label.Field.Range
		if r.Offset == 0 && len(r.Access) == 1 {
			stride := int64(r.Access[0].Size)
			// The element is laid out first so a cycle back to n is seen.
			if err := l.build(offsets[0].To, false); err != nil {
				return err
			}
			l.infos[n] = &TypeInfo{Kind: KindArray, Size: stride, ElemSize: stride, Target: offsets[0].To}
			return nil
		}
	}

	for _, e := range loads {
		f0 := l.newNode("F0_", n)
		g.OnlyAddEdge(n, f0, offsetLabel(0))
		g.OnlyAddEdge(f0, e.To, e.Label)
		g.RemoveEdge(e.From, e.To, e.Label)
	}

	fields, err := l.arrayFields(n)
	if err != nil {
		return err
	}
	rest, err := l.plainFields(n, fields)
	if err != nil {
		return err
	}
	fields = append(fields, rest...)

	for {
		merged, done, err := l.mergeOverlap(n, fields, mustStruct)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if merged == nil {
			break
		}
		fields = merged
	}

	if len(fields) == 0 {
		l.infos[n] = &TypeInfo{Kind: KindStruct}
		return nil
	}
	slices.SortStableFunc(fields, func(a, b Field) int { return cmp.Compare(a.Start, b.Start) })
	var end int64
	for _, f := range fields {
		end = max(end, f.End())
	}
	l.infos[n] = &TypeInfo{Kind: KindStruct, Size: end - min(0, fields[0].Start), Fields: fields}
	return nil
}

// pendingOffsets returns the offset edges of n that are not yet fields,
// ordered by offset.
func (l *Layouts) pendingOffsets(n graph.NodeID, strided bool) []graph.Edge {
	var out []graph.Edge
	for _, e := range l.g.Node(n).Out() {
		if !e.Label.IsRecall() || !e.Label.Field.IsOffset() {
			continue
		}
		if (len(e.Label.Field.Range.Access) > 0) == strided {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b graph.Edge) int {
		if c := cmp.Compare(a.Label.Field.Range.Offset, b.Label.Field.Range.Offset); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	return out
}

// arrayFields turns the strided offset edges of n into array fields,
// largest stride first. Accesses whose base falls within one stride of the
// first base form one element, which becomes an `ArrElem_` node below a
// `Field_` node at that base.
func (l *Layouts) arrayFields(n graph.NodeID) ([]Field, error) {
	g := l.g
	remaining := l.pendingOffsets(n, true)
	var strides []int64
	for _, e := range remaining {
		for _, a := range e.Label.Field.Range.Access {
			if a.Size > 0 && !slices.Contains(strides, int64(a.Size)) {
				strides = append(strides, int64(a.Size))
			}
		}
	}
	slices.Sort(strides)

	var fields []Field
	for i := len(strides) - 1; i >= 0; i-- {
		stride := strides[i]
		var group []graph.Edge
		remaining = slices.DeleteFunc(remaining, func(e graph.Edge) bool {
			if hasStride(e.Label.Field.Range, stride) {
				group = append(group, e)
				return true
			}
			return false
		})

		for len(group) > 0 {
			start := group[0].Label.Field.Range.Offset
			k := 1
			for k < len(group) && group[k].Label.Field.Range.Offset < start+stride {
				k++
			}
			inRange := group[:k]
			group = group[k:]

			field := l.newNode("Field_", n)
			g.OnlyAddEdge(n, field, offsetLabel(start))
			fields = append(fields, Field{Start: start, Size: stride, Target: field})

			only := inRange[0].Label.Field.Range
			if len(inRange) == 1 && only.Offset == start && len(only.Access) == 1 {
				g.OnlyAddEdge(field, inRange[0].To, strideLabel(stride))
				g.RemoveEdge(inRange[0].From, inRange[0].To, inRange[0].Label)
			} else {
				elem := l.newNode("ArrElem_", n)
				for _, e := range inRange {
					r := e.Label.Field.Range
					nr := schema.OffsetRange{Offset: r.Offset - start}
					for _, a := range r.Access {
						if int64(a.Size) != stride {
							nr.Access = append(nr.Access, a)
						}
					}
					g.OnlyAddEdge(elem, e.To, graph.Recall(schema.Offset(nr)))
					g.RemoveEdge(e.From, e.To, e.Label)
				}
				g.OnlyAddEdge(field, elem, strideLabel(stride))
			}
			if err := l.build(field, false); err != nil {
				return nil, err
			}
		}
	}
	return fields, nil
}

func hasStride(r schema.OffsetRange, stride int64) bool {
	for _, a := range r.Access {
		if int64(a.Size) == stride {
			return true
		}
	}
	return false
}

// plainFields lays out the targets of the constant offset edges of n and
// returns one field per target of known size. Targets already in done are
// skipped.
func (l *Layouts) plainFields(n graph.NodeID, done []Field) ([]Field, error) {
	var fields []Field
	for _, e := range l.pendingOffsets(n, false) {
		if slices.ContainsFunc(done, func(f Field) bool { return f.Target == e.To }) {
			continue
		}
		if err := l.build(e.To, false); err != nil {
			return nil, err
		}
		ti, ok := l.infos[e.To]
		if !ok || ti.Size == 0 {
			continue
		}
		fields = append(fields, Field{Start: e.Label.Field.Range.Offset, Size: ti.Size, Target: e.To})
	}
	return fields, nil
}

func overlaps(s1, e1, s2, e2 int64) bool {
	return max(s1, s2) < min(e1, e2)
}

func overlapping(fields []Field, start, end int64) int {
	n := 0
	for _, f := range fields {
		if overlaps(start, end, f.Start, f.End()) {
			n++
		}
	}
	return n
}

// mergeOverlap finds the first run of overlapping fields of n and turns it
// into a union. It returns the new field list, or nil when no fields
// overlap. done reports that n itself became the union.
func (l *Layouts) mergeOverlap(n graph.NodeID, fields []Field, mustStruct bool) ([]Field, bool, error) {
	g := l.g
	var bounds []int64
	for _, f := range fields {
		bounds = append(bounds, f.Start, f.End())
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)

	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		count := overlapping(fields, start, end)
		if count <= 1 {
			continue
		}
		for {
			for _, f := range fields {
				if overlaps(start, end, f.Start, f.End()) {
					start = min(start, f.Start)
					end = max(end, f.End())
				}
			}
			next := overlapping(fields, start, end)
			if next == count {
				break
			}
			count = next
		}

		var others, members []Field
		for _, f := range fields {
			if overlaps(start, end, f.Start, f.End()) {
				members = append(members, f)
			} else {
				others = append(others, f)
			}
		}
		slices.SortStableFunc(members, func(a, b Field) int { return cmp.Compare(a.End(), b.End()) })
		size := end - start

		un := n
		if mustStruct || len(others) > 0 || start != 0 {
			un = l.newNode("Un_", n)
			for _, f := range members {
				g.RemoveEdge(n, f.Target, offsetLabel(f.Start))
				g.OnlyAddEdge(un, f.Target, offsetLabel(f.Start-start))
			}
			g.OnlyAddEdge(n, un, offsetLabel(start))
		}

		var panels [][]Field
		for _, f := range members {
			f.Start -= start
			placed := false
			for p := range panels {
				if panels[p][len(panels[p])-1].End() <= f.Start {
					panels[p] = append(panels[p], f)
					placed = true
					break
				}
			}
			if !placed {
				panels = append(panels, []Field{f})
			}
		}

		info := &TypeInfo{Kind: KindUnion, Size: size}
		for _, p := range panels {
			if len(p) == 1 && p[0].Start == 0 {
				info.Members = append(info.Members, p[0].Target)
				continue
			}
			us := l.newNode("Us_", un)
			for _, f := range p {
				g.RemoveEdge(un, f.Target, offsetLabel(f.Start))
				g.OnlyAddEdge(us, f.Target, offsetLabel(f.Start))
			}
			g.OnlyAddEdge(un, us, offsetLabel(0))
			l.infos[us] = &TypeInfo{Kind: KindStruct, Size: size, Fields: p}
			info.Members = append(info.Members, us)
		}
		l.infos[un] = info
		l.logger.Debug("layout: overlapping fields become a union",
			"graph", g.Name, "node", g.Node(un).Key.String(), "members", len(info.Members), "size", size)

		if un == n {
			return nil, true, nil
		}
		return append(others, Field{Start: start, Size: size, Target: un}), false, nil
	}
	return nil, false, nil
}
