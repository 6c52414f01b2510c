package graph

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/NotDec/NotDec-sub000/internal/pni"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// DefaultPointerSize is the pointer width in bits used when none is given.
const DefaultPointerSize = 32

// Option configures a Graph.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	pointerSize uint32
	noLattice   bool
	trace       []string
}

// WithLogger sets the logger for warnings and traced mutations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPointerSize sets the pointer width in bits.
func WithPointerSize(bits uint32) Option {
	return func(o *options) { o.pointerSize = bits }
}

// WithoutLattice builds a graph with no pni.Graph attached. Determinized
// and sketch graphs copy finished cells instead of inferring them.
func WithoutLattice() Option {
	return func(o *options) { o.noLattice = true }
}

// WithTrace logs every mutation touching the listed nodes at Info level.
// Entries match a node id, a node key or a bare type variable.
func WithTrace(ids ...string) Option {
	return func(o *options) { o.trace = append(o.trace, ids...) }
}

// Graph is an arena of nodes and labelled edges.
type Graph struct {
	// Name is used in logs and dumps.
	Name string

	// PG holds the lattice cells of the nodes. Nil for graphs built
	// WithoutLattice.
	PG *pni.Graph[NodeID]

	// StartNodes and EndNodes record the nodes linked from #Start and into
	// #End by LinkVars, so later passes can recover them.
	StartNodes map[NodeID]bool
	EndNodes   map[NodeID]bool

	pool        *schema.Pool
	opts        options
	nodes       []*Node
	index       map[NodeKey]NodeID
	live        int
	start       NodeID
	end         NodeID
	memory      NodeID
	layerSplit  bool
	sketchSplit bool
	logger      *slog.Logger
	trace       map[string]bool
}

// New creates an empty graph over the type variables of pool.
func New(pool *schema.Pool, name string, opts ...Option) *Graph {
	o := options{logger: slog.Default(), pointerSize: DefaultPointerSize}
	for _, opt := range opts {
		opt(&o)
	}
	g := &Graph{
		Name:       name,
		StartNodes: make(map[NodeID]bool),
		EndNodes:   make(map[NodeID]bool),
		pool:       pool,
		opts:       o,
		index:      make(map[NodeKey]NodeID),
		start:      NoNode,
		end:        NoNode,
		memory:     NoNode,
		logger:     o.logger.With("graph", name),
	}
	if !o.noLattice {
		g.PG = pni.New[NodeID](pni.WithLogger(g.logger))
	}
	if len(o.trace) > 0 {
		g.trace = make(map[string]bool, len(o.trace))
		for _, id := range o.trace {
			g.trace[id] = true
		}
	}
	return g
}

// Pool returns the type variable pool.
func (g *Graph) Pool() *schema.Pool { return g.pool }

// PointerSize returns the pointer width in bits.
func (g *Graph) PointerSize() uint32 { return g.opts.pointerSize }

// Logger returns the graph logger.
func (g *Graph) Logger() *slog.Logger { return g.logger }

// Len returns the number of live nodes.
func (g *Graph) Len() int { return g.live }

// Node returns the node with the given id, or nil if it was removed.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns the live nodes in creation order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, g.live)
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Lookup returns the node with the given key, or NoNode.
func (g *Graph) Lookup(key NodeKey) NodeID {
	if id, ok := g.index[key]; ok {
		return id
	}
	return NoNode
}

// IsSymmetric reports whether the graph still mirrors every edge on the
// dual side. LayerSplit ends symmetry.
func (g *Graph) IsSymmetric() bool { return !g.layerSplit }

// IsLayerSplit reports whether LayerSplit ran.
func (g *Graph) IsLayerSplit() bool { return g.layerSplit }

// IsSketchSplit reports whether SketchSplit ran.
func (g *Graph) IsSketchSplit() bool { return g.sketchSplit }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, node := range g.nodes {
		if node != nil {
			n += len(node.out)
		}
	}
	return n
}

func (g *Graph) traced(id NodeID) bool {
	if g.trace == nil {
		return false
	}
	n := g.nodes[id]
	return g.trace[strconv.Itoa(int(id))] || g.trace[n.Key.String()] || g.trace[n.Key.Var.String()]
}

func (g *Graph) note(msg string, ids ...NodeID) {
	if g.trace == nil {
		return
	}
	for _, id := range ids {
		if g.traced(id) {
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = g.nodes[id].Key.String()
			}
			g.logger.Info(msg, "nodes", keys)
			return
		}
	}
}

// AddNode creates a single node with the given lattice ref.
func (g *Graph) AddNode(key NodeKey, ref pni.Ref) (NodeID, error) {
	if id, ok := g.index[key]; ok {
		return id, &InvariantError{
			Code:    ErrCodeDuplicateNode,
			Message: "node already exists",
			Node:    key.String(),
		}
	}
	return g.addNode(key, ref), nil
}

func (g *Graph) addNode(key NodeKey, ref pni.Ref) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, newNode(id, key, ref))
	g.index[key] = id
	g.live++
	g.note("graph: add node", id)
	return id
}

// SetDual records a and b as each other's dual.
func (g *Graph) SetDual(a, b NodeID) {
	g.nodes[a].dual = b
	g.nodes[b].dual = a
}

// Dual returns the dual of id, or NoNode.
func (g *Graph) Dual(id NodeID) NodeID {
	return g.nodes[id].dual
}

// CreateNodePair creates key and its dual sharing a new cell. The pair must
// not exist yet.
func (g *Graph) CreateNodePair(key NodeKey, cell pni.Cell) (NodeID, NodeID) {
	ref := pni.NoRef
	if g.PG != nil {
		ref = g.PG.NewCell(cell)
	}
	return g.CreateNodePairWithRef(key, ref)
}

// CreateNodePairWithRef creates key and its dual over an existing ref.
func (g *Graph) CreateNodePairWithRef(key NodeKey, ref pni.Ref) (NodeID, NodeID) {
	n := g.addNode(key, ref)
	nc := g.addNode(key.Dual(), ref)
	g.SetDual(n, nc)
	return n, nc
}

// Insert returns the node for key, creating it and its dual with the
// default cell for the variable when missing.
func (g *Graph) Insert(key NodeKey) NodeID {
	if id, ok := g.index[key]; ok {
		return id
	}
	if dual, ok := g.index[key.Dual()]; ok {
		id := g.addNode(key, g.nodes[dual].Ref)
		g.SetDual(id, dual)
		return id
	}
	n, _ := g.CreateNodePair(key, g.DefaultCell(key.Var))
	return n
}

// InsertVar is Insert for a covariant first layer key.
func (g *Graph) InsertVar(v *schema.TypeVar) NodeID {
	return g.Insert(Key(v))
}

// DefaultCell returns the cell a fresh node for v starts with.
func (g *Graph) DefaultCell(v *schema.TypeVar) pni.Cell {
	ps := g.opts.pointerSize
	switch {
	case v.IsPrimitive() && !v.HasLabel():
		return pni.CellForPrimitive(v.BaseName(), ps)
	case v.IsMemory() && !v.HasLabel():
		return pni.NewCell(pni.Pointer, ps)
	}
	if last, ok := v.LastLabel(); ok && (last.IsLoad() || last.IsStore()) {
		return pni.CellForBits(last.Size, ps)
	}
	return pni.NewCell(pni.Unknown, ps)
}

// Cell returns the lattice cell of id. Nodes without a ref report an
// Unknown pointer-sized cell.
func (g *Graph) Cell(id NodeID) pni.Cell {
	n := g.nodes[id]
	if g.PG == nil || n.Ref == pni.NoRef {
		return pni.NewCell(pni.Unknown, g.opts.pointerSize)
	}
	return g.PG.Cell(n.Ref)
}

// Start returns #Start, creating it on first use.
func (g *Graph) Start() NodeID {
	if g.start == NoNode {
		g.start = g.addNode(Key(g.pool.Prim("Start")), pni.NoRef)
	}
	return g.start
}

// End returns #End, creating it on first use.
func (g *Graph) End() NodeID {
	if g.end == NoNode {
		g.end = g.addNode(Key(g.pool.Prim("End")), pni.NoRef)
	}
	return g.end
}

// Memory returns the MEMORY node of the given variance, creating the pair
// on first use.
func (g *Graph) Memory(v schema.Variance) NodeID {
	if g.memory == NoNode {
		key := Key(g.pool.Memory())
		if id := g.Lookup(key); id != NoNode {
			g.memory = id
		} else {
			g.memory, _ = g.CreateNodePair(key, pni.NewCell(pni.Pointer, g.opts.pointerSize))
		}
	}
	if v == schema.Contravariant {
		if g.nodes[g.memory].dual == NoNode {
			m := g.nodes[g.memory]
			g.SetDual(g.memory, g.addNode(m.Key.Dual(), m.Ref))
		}
		return g.nodes[g.memory].dual
	}
	return g.memory
}

// HasStart reports whether #Start exists.
func (g *Graph) HasStart() bool { return g.start != NoNode }

// HasEnd reports whether #End exists.
func (g *Graph) HasEnd() bool { return g.end != NoNode }

// IsStartOrEnd reports whether id is #Start or #End.
func (g *Graph) IsStartOrEnd(id NodeID) bool {
	return id != NoNode && (id == g.start || id == g.end)
}

// IsMemory reports whether id is one of the MEMORY nodes.
func (g *Graph) IsMemory(id NodeID) bool {
	return g.memory != NoNode && (id == g.memory || id == g.nodes[g.memory].dual)
}

// IsSpecial reports whether id is #Start, #End or MEMORY.
func (g *Graph) IsSpecial(id NodeID) bool {
	return g.IsStartOrEnd(id) || g.IsMemory(id)
}

// IsPrimitive reports whether id is a bare primitive node.
func (g *Graph) IsPrimitive(id NodeID) bool {
	v := g.nodes[id].Key.Var
	return v.IsPrimitive() && !v.HasLabel() && !g.IsStartOrEnd(id)
}

// HasEdge reports whether the edge exists.
func (g *Graph) HasEdge(from, to NodeID, l EdgeLabel) bool {
	_, ok := g.nodes[from].out[edgeKey{to, l.String()}]
	return ok
}

// OnlyAddEdge adds the edge without touching the lattice. It reports
// whether the edge is new.
func (g *Graph) OnlyAddEdge(from, to NodeID, l EdgeLabel) bool {
	fn, tn := g.nodes[from], g.nodes[to]
	s := l.String()
	if _, ok := fn.out[edgeKey{to, s}]; ok {
		return false
	}
	fn.out[edgeKey{to, s}] = l
	tn.in[edgeKey{from, s}] = l
	g.note("graph: add edge "+s, from, to)
	return true
}

// AddEdge adds the edge and, while the graph is symmetric, merges the
// cells it relates: a One edge relates equal values and an offset edge
// relates a pointer to a derived pointer. A self One edge is skipped.
func (g *Graph) AddEdge(from, to NodeID, l EdgeLabel) bool {
	if from == to && l.IsOne() {
		return false
	}
	if from == to {
		g.logger.Debug("graph: adding self loop", "node", g.nodes[from].Key.String(), "label", l.String())
	}
	if g.PG != nil && !g.layerSplit {
		fr, tr := g.nodes[from].Ref, g.nodes[to].Ref
		if fr != pni.NoRef && tr != pni.NoRef {
			switch {
			case l.IsOne():
				g.PG.Unify(fr, tr)
			case l.HasField() && l.Field.IsOffset():
				g.PG.Unify(fr, tr)
				g.PG.SetKind(fr, pni.Pointer)
			}
		}
	}
	return g.OnlyAddEdge(from, to, l)
}

// RemoveEdge deletes the edge and reports whether it existed.
func (g *Graph) RemoveEdge(from, to NodeID, l EdgeLabel) bool {
	fn, tn := g.nodes[from], g.nodes[to]
	s := l.String()
	if _, ok := fn.out[edgeKey{to, s}]; !ok {
		return false
	}
	delete(fn.out, edgeKey{to, s})
	delete(tn.in, edgeKey{from, s})
	g.note("graph: remove edge "+s, from, to)
	return true
}

func (g *Graph) removeEdges(id NodeID) {
	n := g.nodes[id]
	for _, e := range n.Out() {
		g.RemoveEdge(e.From, e.To, e.Label)
	}
	for _, e := range n.In() {
		g.RemoveEdge(e.From, e.To, e.Label)
	}
}

// RemoveNode deletes a node that has no edges left. Special nodes cannot
// be removed.
func (g *Graph) RemoveNode(id NodeID) error {
	n := g.Node(id)
	if n == nil {
		return &InvariantError{Code: ErrCodeMissingNode, Message: fmt.Sprintf("node %d does not exist", id)}
	}
	if g.IsSpecial(id) {
		return &InvariantError{Code: ErrCodeUnexpectedEdge, Message: "cannot remove special node", Node: n.Key.String()}
	}
	if len(n.out) > 0 || len(n.in) > 0 {
		return &InvariantError{Code: ErrCodeUnexpectedEdge, Message: "node still has edges", Node: n.Key.String()}
	}
	g.note("graph: remove node", id)
	if n.dual != NoNode && g.nodes[n.dual] != nil {
		g.nodes[n.dual].dual = NoNode
	}
	delete(g.StartNodes, id)
	delete(g.EndNodes, id)
	delete(g.index, n.Key)
	if g.PG != nil {
		g.PG.DropNode(id)
	}
	g.nodes[id] = nil
	g.live--
	return nil
}

// DropNode removes a node together with its edges.
func (g *Graph) DropNode(id NodeID) error {
	if g.Node(id) == nil {
		return &InvariantError{Code: ErrCodeMissingNode, Message: fmt.Sprintf("node %d does not exist", id)}
	}
	g.removeEdges(id)
	return g.RemoveNode(id)
}

// MergeNodeTo moves every edge of from onto to and removes from. Edges
// between the two become self loops on to; One self loops vanish, and with
// noSelfLoop every self loop does.
func (g *Graph) MergeNodeTo(from, to NodeID, noSelfLoop bool) error {
	if from == to {
		return nil
	}
	fn, tn := g.Node(from), g.Node(to)
	if fn == nil || tn == nil {
		return &InvariantError{Code: ErrCodeMissingNode, Message: "merge of a removed node"}
	}
	if g.IsSpecial(from) {
		return &InvariantError{Code: ErrCodeUnexpectedEdge, Message: "cannot merge special node", Node: fn.Key.String()}
	}
	g.note("graph: merge node", from, to)
	if g.PG != nil {
		if fn.Ref != pni.NoRef && tn.Ref != pni.NoRef {
			g.PG.Unify(fn.Ref, tn.Ref)
		}
		g.PG.ReplaceNode(from, to)
	}
	keepLoop := func(l EdgeLabel) bool { return !l.IsOne() && !noSelfLoop }
	for _, e := range fn.Out() {
		if e.To == from || e.To == to {
			if keepLoop(e.Label) {
				g.OnlyAddEdge(to, to, e.Label)
			}
			continue
		}
		g.OnlyAddEdge(to, e.To, e.Label)
	}
	for _, e := range fn.In() {
		if e.From == from || e.From == to {
			if keepLoop(e.Label) {
				g.OnlyAddEdge(to, to, e.Label)
			}
			continue
		}
		g.OnlyAddEdge(e.From, to, e.Label)
	}
	if g.StartNodes[from] {
		g.StartNodes[to] = true
	}
	if g.EndNodes[from] {
		g.EndNodes[to] = true
	}
	g.removeEdges(from)
	return g.RemoveNode(from)
}

// RemoveUnreachable drops every non-special node not reachable from
// #Start.
func (g *Graph) RemoveUnreachable() int {
	if !g.HasStart() {
		return 0
	}
	seen := g.Reachable([]NodeID{g.start})
	removed := 0
	for _, n := range g.Nodes() {
		if seen[n.ID] || g.IsSpecial(n.ID) {
			continue
		}
		g.removeEdges(n.ID)
	}
	for _, n := range g.Nodes() {
		if seen[n.ID] || g.IsSpecial(n.ID) {
			continue
		}
		if err := g.RemoveNode(n.ID); err == nil {
			removed++
		}
	}
	return removed
}

// Reachable returns the nodes reachable from roots, roots included.
func (g *Graph) Reachable(roots []NodeID) map[NodeID]bool {
	seen := make(map[NodeID]bool)
	stack := append([]NodeID(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for k := range g.nodes[id].out {
			if !seen[k.peer] {
				stack = append(stack, k.peer)
			}
		}
	}
	return seen
}
