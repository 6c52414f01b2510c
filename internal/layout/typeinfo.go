package layout

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// Kind distinguishes the shapes of TypeInfo.
type Kind uint8

const (
	// KindSimple is a pointer to a single loaded value, or void.
	KindSimple Kind = iota + 1
	// KindArray is a pointer to repeated elements of ElemSize bytes.
	KindArray
	// KindStruct is a pointer to non-overlapping fields.
	KindStruct
	// KindUnion is a pointer to overlapping members.
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Field is a member of a struct or a union panel. Target is the node of
// the pointer to the field, reached by `@Start` from the struct pointer.
type Field struct {
	Start   int64
	Size    int64
	Target  graph.NodeID
	Padding bool
}

// End returns the offset one past the field.
func (f Field) End() int64 { return f.Start + f.Size }

// TypeInfo describes what a pointer node points to. Size is in bytes and
// zero when unknown.
//
// For KindSimple, Target is the node of the loaded value (NoNode for a
// void pointer) and LoadBits its width. For KindArray, Target is the node
// of the pointer to one element.
type TypeInfo struct {
	Kind     Kind
	Size     int64
	Target   graph.NodeID
	LoadBits uint32
	ElemSize int64
	Fields   []Field
	Members  []graph.NodeID

	// Merged is set on a union that MergeArrayUnions turned into its array.
	Merged bool
}

// Clone returns a deep copy.
func (t *TypeInfo) Clone() *TypeInfo {
	c := *t
	c.Fields = slices.Clone(t.Fields)
	c.Members = slices.Clone(t.Members)
	return &c
}

func (t *TypeInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s size=%d", t.Kind, t.Size)
	switch t.Kind {
	case KindSimple:
		if t.Target != graph.NoNode {
			fmt.Fprintf(&b, " load%d->%d", t.LoadBits, t.Target)
		}
	case KindArray:
		fmt.Fprintf(&b, " elem=%d stride=%d", t.Target, t.ElemSize)
	case KindStruct:
		for _, f := range t.Fields {
			fmt.Fprintf(&b, " [%d,%d)->%d", f.Start, f.End(), f.Target)
		}
	case KindUnion:
		for _, m := range t.Members {
			fmt.Fprintf(&b, " |%d", m)
		}
	}
	return b.String()
}

// replace points every reference to from at to.
func (t *TypeInfo) replace(from, to graph.NodeID) {
	if t.Target == from {
		t.Target = to
	}
	for i := range t.Fields {
		if t.Fields[i].Target == from {
			t.Fields[i].Target = to
		}
	}
	for i := range t.Members {
		if t.Members[i] == from {
			t.Members[i] = to
		}
	}
}

// Merger merges one node of the graph into another. Callers that keep
// maps into the graph pass their own implementation so the maps follow.
type Merger interface {
	MergeNodeTo(from, to graph.NodeID, noSelfLoop bool) error
}

// Layouts holds the TypeInfo of every pointer node of one sketch graph.
type Layouts struct {
	g        *graph.Graph
	namer    *schema.Namer
	logger   *slog.Logger
	infos    map[graph.NodeID]*TypeInfo
	visiting map[graph.NodeID]bool
}

// Graph returns the organized graph.
func (l *Layouts) Graph() *graph.Graph { return l.g }

// Info returns the layout of id.
func (l *Layouts) Info(id graph.NodeID) (*TypeInfo, bool) {
	t, ok := l.infos[id]
	return t, ok
}

// Nodes returns the nodes with a layout in id order.
func (l *Layouts) Nodes() []graph.NodeID {
	out := make([]graph.NodeID, 0, len(l.infos))
	for id := range l.infos {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of layouts.
func (l *Layouts) Len() int { return len(l.infos) }

// IsPointer reports whether id is laid out as a pointer: its cell says so
// or it has a load or offset edge.
func (l *Layouts) IsPointer(id graph.NodeID) bool {
	if l.g.IsStartOrEnd(id) {
		return false
	}
	if l.g.Cell(id).Kind == pni.Pointer {
		return true
	}
	for _, e := range l.g.Node(id).Out() {
		if e.Label.IsRecall() && (e.Label.Field.IsLoad() || e.Label.Field.IsOffset()) {
			return true
		}
	}
	return false
}
