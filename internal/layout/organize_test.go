package layout

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// sketch builds a sketch graph by node name.
type sketch struct {
	t *testing.T
	g *graph.Graph
}

func newSketch(t *testing.T) *sketch {
	t.Helper()
	g := graph.New(schema.NewPool(), "sketch", graph.WithLogger(discard), graph.WithPointerSize(32))
	return &sketch{t: t, g: g}
}

func (s *sketch) n(name string) graph.NodeID {
	return s.g.InsertVar(s.g.Pool().Var(name))
}

func (s *sketch) at(from, to string, off int64) {
	s.g.OnlyAddEdge(s.n(from), s.n(to), graph.Recall(schema.ConstOffset(off)))
}

func (s *sketch) strided(from, to string, off, stride int64) {
	r := schema.OffsetRange{Offset: off, Access: []schema.ArrayOffset{{Size: uint64(stride)}}}
	s.g.OnlyAddEdge(s.n(from), s.n(to), graph.Recall(schema.Offset(r)))
}

func (s *sketch) load(from, to string, bits uint32) {
	s.g.OnlyAddEdge(s.n(from), s.n(to), graph.Recall(schema.Load(bits)))
}

func (s *sketch) number(name string, bits uint32) {
	s.g.PG.SetCell(s.g.Node(s.n(name)).Ref, pni.NewCell(pni.Number, bits))
}

func (s *sketch) organize() *Layouts {
	s.t.Helper()
	l, err := OrganizeTypes(s.g, WithLogger(discard))
	require.NoError(s.t, err)
	return l
}

func (s *sketch) info(l *Layouts, name string) *TypeInfo {
	s.t.Helper()
	info, ok := l.Info(s.n(name))
	require.True(s.t, ok, "%s should have a layout", name)
	return info
}

func TestOrganizeTypes_SimplePointer(t *testing.T) {
	s := newSketch(t)
	s.load("p", "v", 32)
	s.number("v", 32)

	l := s.organize()
	want := &TypeInfo{Kind: KindSimple, Size: 4, Target: s.n("v"), LoadBits: 32}
	assert.Empty(t, cmp.Diff(want, s.info(l, "p")))
	_, ok := l.Info(s.n("v"))
	assert.False(t, ok, "numbers get no layout")
}

func TestOrganizeTypes_Struct(t *testing.T) {
	s := newSketch(t)
	s.at("p", "a", 0)
	s.at("p", "b", 4)
	s.load("a", "x", 32)
	s.load("b", "y", 32)

	l := s.organize()
	want := &TypeInfo{
		Kind: KindStruct,
		Size: 8,
		Fields: []Field{
			{Start: 0, Size: 4, Target: s.n("a")},
			{Start: 4, Size: 4, Target: s.n("b")},
		},
	}
	assert.Empty(t, cmp.Diff(want, s.info(l, "p")))
}

func TestOrganizeTypes_LoadBecomesFieldAtZero(t *testing.T) {
	s := newSketch(t)
	s.load("p", "x", 32)
	s.at("p", "b", 4)
	s.load("b", "y", 16)

	l := s.organize()
	info := s.info(l, "p")
	require.Equal(t, KindStruct, info.Kind)
	require.Len(t, info.Fields, 2)
	assert.Equal(t, int64(0), info.Fields[0].Start)
	assert.Equal(t, int64(4), info.Fields[1].Start)
	assert.Equal(t, int64(6), info.Size)

	f0 := info.Fields[0].Target
	assert.Contains(t, s.g.Node(f0).Key.String(), "F0_")
	assert.True(t, s.g.HasEdge(f0, s.n("x"), graph.Recall(schema.Load(32))))
	assert.False(t, s.g.HasEdge(s.n("p"), s.n("x"), graph.Recall(schema.Load(32))), "the load moved under F0_")
}

func TestOrganizeTypes_Array(t *testing.T) {
	s := newSketch(t)
	s.strided("p", "e", 0, 4)
	s.load("e", "x", 32)

	l := s.organize()
	want := &TypeInfo{Kind: KindArray, Size: 4, ElemSize: 4, Target: s.n("e")}
	assert.Empty(t, cmp.Diff(want, s.info(l, "p")))
	assert.Equal(t, KindSimple, s.info(l, "e").Kind)
}

func TestOrganizeTypes_StridedFieldInStruct(t *testing.T) {
	s := newSketch(t)
	s.at("p", "a", 0)
	s.load("a", "x", 32)
	s.strided("p", "e", 8, 4)
	s.load("e", "y", 32)

	l := s.organize()
	info := s.info(l, "p")
	require.Equal(t, KindStruct, info.Kind)
	require.Len(t, info.Fields, 2)
	assert.Equal(t, Field{Start: 0, Size: 4, Target: s.n("a")}, info.Fields[0])

	arr := info.Fields[1]
	assert.Equal(t, int64(8), arr.Start)
	assert.Contains(t, s.g.Node(arr.Target).Key.String(), "Field_")
	elem, ok := l.Info(arr.Target)
	require.True(t, ok)
	assert.Equal(t, KindArray, elem.Kind)
	assert.Equal(t, s.n("e"), elem.Target)
	assert.Equal(t, int64(12), info.Size)
}

func TestOrganizeTypes_OverlapBecomesUnion(t *testing.T) {
	s := newSketch(t)
	s.at("p", "a", 0)
	s.at("p", "b", 0)
	s.load("a", "x", 64)
	s.load("b", "y", 32)

	l := s.organize()
	info := s.info(l, "p")
	require.Equal(t, KindUnion, info.Kind)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, []graph.NodeID{s.n("b"), s.n("a")}, info.Members, "panels ordered by end")
}

func TestOrganizeTypes_UnionInsideStruct(t *testing.T) {
	s := newSketch(t)
	s.at("p", "h", 0)
	s.load("h", "z", 32)
	s.at("p", "a", 4)
	s.at("p", "b", 4)
	s.load("a", "x", 64)
	s.load("b", "y", 32)

	l := s.organize()
	info := s.info(l, "p")
	require.Equal(t, KindStruct, info.Kind)
	require.Len(t, info.Fields, 2)
	assert.Equal(t, int64(12), info.Size)

	un := info.Fields[1].Target
	assert.Contains(t, s.g.Node(un).Key.String(), "Un_")
	ui, ok := l.Info(un)
	require.True(t, ok)
	assert.Equal(t, KindUnion, ui.Kind)
	assert.Len(t, ui.Members, 2)
	assert.True(t, s.g.HasEdge(s.n("p"), un, graph.Recall(schema.ConstOffset(4))))
}

func TestOrganizeTypes_UnionPanelStruct(t *testing.T) {
	s := newSketch(t)
	s.at("p", "a", 0)
	s.at("p", "b", 0)
	s.at("p", "c", 4)
	s.load("a", "x", 64)
	s.load("b", "y", 32)
	s.load("c", "w", 32)

	l := s.organize()
	info := s.info(l, "p")
	require.Equal(t, KindUnion, info.Kind)
	require.Len(t, info.Members, 2)

	panel, ok := l.Info(info.Members[0])
	require.True(t, ok)
	assert.Equal(t, KindStruct, panel.Kind)
	assert.Contains(t, s.g.Node(info.Members[0]).Key.String(), "Us_")
	assert.Len(t, panel.Fields, 2, "b and c share a panel")
	assert.Equal(t, s.n("a"), info.Members[1])
}

func TestOrganizeTypes_MemoryIsStruct(t *testing.T) {
	s := newSketch(t)
	mem := s.g.Memory(schema.Covariant)
	s.g.OnlyAddEdge(mem, s.n("a"), graph.Recall(schema.ConstOffset(0)))
	s.load("a", "x", 32)

	l := s.organize()
	info, ok := l.Info(mem)
	require.True(t, ok)
	assert.Equal(t, KindStruct, info.Kind)
	assert.Equal(t, []Field{{Start: 0, Size: 4, Target: s.n("a")}}, info.Fields)
}

func TestOrganizeTypes_SelfOffsetLoopRemoved(t *testing.T) {
	s := newSketch(t)
	s.strided("p", "p", 0, 4)
	s.load("p", "x", 32)

	l := s.organize()
	assert.Equal(t, KindSimple, s.info(l, "p").Kind)
	assert.Equal(t, 1, s.g.Node(s.n("p")).OutDegree())
}

func TestOrganizeTypes_CycleIsFatal(t *testing.T) {
	s := newSketch(t)
	s.at("p", "q", 4)
	s.at("q", "p", 4)

	_, err := OrganizeTypes(s.g, WithLogger(discard))
	require.Error(t, err)
	assert.True(t, graph.HasCode(err, graph.ErrCodeLayoutCycle))
}

func TestOrganizeTypes_CycleThroughArrayIsFatal(t *testing.T) {
	s := newSketch(t)
	s.strided("p", "q", 0, 4)
	s.at("q", "p", 8)

	_, err := OrganizeTypes(s.g, WithLogger(discard))
	require.Error(t, err)
	assert.True(t, graph.HasCode(err, graph.ErrCodeLayoutCycle))
}

func TestOrganizeTypes_RejectsOneEdges(t *testing.T) {
	s := newSketch(t)
	s.g.OnlyAddEdge(s.n("p"), s.n("q"), graph.One())

	_, err := OrganizeTypes(s.g, WithLogger(discard))
	require.Error(t, err)
	assert.True(t, graph.HasCode(err, graph.ErrCodeUnexpectedEdge))
}

func TestOrganizeTypes_RejectsStoreEdges(t *testing.T) {
	s := newSketch(t)
	s.g.OnlyAddEdge(s.n("p"), s.n("x"), graph.Recall(schema.Store(32)))

	_, err := OrganizeTypes(s.g, WithLogger(discard))
	assert.True(t, graph.HasCode(err, graph.ErrCodeUnexpectedEdge))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "struct", KindStruct.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
