package pni

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// Ref addresses a cell slot. Slots are never freed; merged slots redirect
// to their union-find root.
type Ref int32

// NoRef is the zero value for nodes without a cell, such as #Start.
const NoRef Ref = -1

// Op is the arithmetic operation of a constraint.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpSub
)

func (o Op) String() string {
	if o == OpSub {
		return "-"
	}
	return "+"
}

// Operand is one side of an arithmetic constraint. Node identifies the
// owner in the constraint graph so a pointer addition can later be turned
// into an offset edge. Range is the offset this operand contributes when it
// ends up being the number in a pointer addition.
type Operand[K comparable] struct {
	Ref   Ref
	Node  K
	Range schema.OffsetRange
}

// Constraint is a ternary Left op Right = Result relation.
type Constraint[K comparable] struct {
	Op     Op
	Left   Operand[K]
	Right  Operand[K]
	Result Operand[K]

	// Origin names the instruction the constraint came from.
	Origin string
}

func (c *Constraint[K]) operands() [3]*Operand[K] {
	return [3]*Operand[K]{&c.Left, &c.Right, &c.Result}
}

// PointerAdd is a discharged addition of a pointer and a number. The
// constraint graph turns it into `Ptr -Recall @Offset-> Result`.
type PointerAdd[K comparable] struct {
	Ptr    Operand[K]
	Result Operand[K]
	Offset schema.OffsetRange
	Origin string
}

// Option configures a Graph.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for lattice conflicts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Graph owns the lattice cells of one constraint graph and the pending
// arithmetic constraints over them.
type Graph[K comparable] struct {
	parent []Ref
	rank   []uint8
	cells  []Cell

	cons  []*Constraint[K]
	touch map[Ref][]int
	queue *worklist

	logger *slog.Logger
}

// New creates an empty lattice graph.
func New[K comparable](opts ...Option) *Graph[K] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Graph[K]{
		touch:  make(map[Ref][]int),
		queue:  newWorklist(),
		logger: o.logger,
	}
}

// NewCell allocates a fresh cell slot.
func (g *Graph[K]) NewCell(c Cell) Ref {
	r := Ref(len(g.cells))
	g.parent = append(g.parent, r)
	g.rank = append(g.rank, 0)
	g.cells = append(g.cells, c)
	return r
}

// Len returns the number of slots, merged ones included.
func (g *Graph[K]) Len() int { return len(g.cells) }

// Find returns the root of r, compressing the path.
func (g *Graph[K]) Find(r Ref) Ref {
	root := r
	for g.parent[root] != root {
		root = g.parent[root]
	}
	for g.parent[r] != root {
		next := g.parent[r]
		g.parent[r] = root
		r = next
	}
	return root
}

// Cell returns the current cell of r.
func (g *Graph[K]) Cell(r Ref) Cell {
	return g.cells[g.Find(r)]
}

// Kind returns the classification of r.
func (g *Graph[K]) Kind(r Ref) Kind {
	return g.Cell(r).Kind
}

// Same reports whether two refs share one cell.
func (g *Graph[K]) Same(a, b Ref) bool {
	return g.Find(a) == g.Find(b)
}

// SetKind moves the cell of r toward k and wakes the constraints over it.
func (g *Graph[K]) SetKind(r Ref, k Kind) bool {
	root := g.Find(r)
	changed := g.setKind(root, k)
	if changed {
		g.markChanged(root, -1)
	}
	return changed
}

func (g *Graph[K]) setKind(root Ref, k Kind) bool {
	before := g.cells[root]
	changed, outcome := g.cells[root].setKind(k)
	g.report(root, before, k, outcome)
	return changed
}

func (g *Graph[K]) report(root Ref, before Cell, k Kind, outcome Outcome) {
	switch outcome {
	case Mixed:
		g.logger.Warn("pni: pointer and number merged",
			"ref", root, "old", before.String(), "new", k.String())
	case Rejected:
		g.logger.Warn("pni: non pointer-sized value merged with pointer/number",
			"ref", root, "old", before.String(), "new", k.String())
	}
}

// SetCell overwrites the cell of r. Used when a summary or override
// supplies the exact lattice value.
func (g *Graph[K]) SetCell(r Ref, c Cell) {
	root := g.Find(r)
	g.cells[root] = c
	g.markChanged(root, -1)
}

// Unify merges the cells of a and b and returns the new root.
func (g *Graph[K]) Unify(a, b Ref) Ref {
	ra, rb := g.Find(a), g.Find(b)
	if ra == rb {
		return ra
	}
	if g.rank[ra] < g.rank[rb] {
		ra, rb = rb, ra
	}
	if g.cells[ra].Size != 0 && g.cells[rb].Size != 0 && g.cells[ra].Size != g.cells[rb].Size {
		g.logger.Debug("pni: unify cells of different size",
			"a", g.cells[ra].String(), "b", g.cells[rb].String())
	}
	before := g.cells[ra]
	_, outcome := g.cells[ra].merge(g.cells[rb])
	g.report(ra, before, g.cells[rb].Kind, outcome)

	g.parent[rb] = ra
	if g.rank[ra] == g.rank[rb] {
		g.rank[ra]++
	}
	if ids := g.touch[rb]; len(ids) > 0 {
		g.touch[ra] = append(g.touch[ra], ids...)
		delete(g.touch, rb)
	}
	g.markChanged(ra, -1)
	return ra
}

// AddAdd registers left + right = result.
func (g *Graph[K]) AddAdd(left, right, result Operand[K], origin string) {
	g.add(&Constraint[K]{Op: OpAdd, Left: left, Right: right, Result: result, Origin: origin})
}

// AddSub registers left - right = result.
func (g *Graph[K]) AddSub(left, right, result Operand[K], origin string) {
	g.add(&Constraint[K]{Op: OpSub, Left: left, Right: right, Result: result, Origin: origin})
}

func (g *Graph[K]) add(c *Constraint[K]) {
	id := len(g.cons)
	g.cons = append(g.cons, c)
	for _, op := range c.operands() {
		root := g.Find(op.Ref)
		if !slices.Contains(g.touch[root], id) {
			g.touch[root] = append(g.touch[root], id)
		}
	}
	g.queue.push(id)
}

// markChanged requeues every live constraint touching root except skip.
func (g *Graph[K]) markChanged(root Ref, skip int) {
	ids := g.touch[root]
	live := ids[:0]
	for _, id := range ids {
		if g.cons[id] == nil || slices.Contains(live, id) {
			continue
		}
		live = append(live, id)
		if id != skip {
			g.queue.push(id)
		}
	}
	if len(live) == 0 {
		delete(g.touch, root)
		return
	}
	g.touch[root] = live
}

// Pending returns the constraints not yet discharged, in insertion order.
func (g *Graph[K]) Pending() []*Constraint[K] {
	var out []*Constraint[K]
	for _, c := range g.cons {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Solve drains the worklist to a fixpoint. It reports whether any cell
// changed and returns the additions resolved to pointer plus number, which
// the caller must turn into offset edges.
func (g *Graph[K]) Solve() (bool, []PointerAdd[K]) {
	anyChanged := false
	var adds []PointerAdd[K]
	for {
		id, ok := g.queue.pop()
		if !ok {
			break
		}
		c := g.cons[id]
		if c == nil {
			continue
		}
		if !g.related(c) {
			g.logger.Debug("pni: dropping constraint over non pointer-sized value",
				"constraint", g.Format(c))
			g.cons[id] = nil
			continue
		}
		for _, root := range g.step(c) {
			anyChanged = true
			g.markChanged(root, id)
		}
		if g.solved(c) {
			if pa, ok := g.discharge(c); ok {
				adds = append(adds, pa)
			}
			g.cons[id] = nil
		}
	}
	return anyChanged, adds
}

func (g *Graph[K]) related(c *Constraint[K]) bool {
	for _, op := range c.operands() {
		if g.Kind(op.Ref) == NotPN {
			return false
		}
	}
	return true
}

func (g *Graph[K]) solved(c *Constraint[K]) bool {
	for _, op := range c.operands() {
		switch g.Kind(op.Ref) {
		case Unknown, Null:
			return false
		}
	}
	return true
}

func (g *Graph[K]) discharge(c *Constraint[K]) (PointerAdd[K], bool) {
	if c.Op != OpAdd {
		return PointerAdd[K]{}, false
	}
	lk, rk := g.Kind(c.Left.Ref), g.Kind(c.Right.Ref)
	switch {
	case lk == Pointer && rk == Number:
		return PointerAdd[K]{Ptr: c.Left, Result: c.Result, Offset: c.Right.Range, Origin: c.Origin}, true
	case lk == Number && rk == Pointer:
		return PointerAdd[K]{Ptr: c.Right, Result: c.Result, Offset: c.Left.Range, Origin: c.Origin}, true
	}
	return PointerAdd[K]{}, false
}

// Format renders a constraint with the current cells of its operands.
func (g *Graph[K]) Format(c *Constraint[K]) string {
	return fmt.Sprintf("%s %s %s = %s", g.Cell(c.Left.Ref), c.Op, g.Cell(c.Right.Ref), g.Cell(c.Result.Ref))
}

// Clone copies the graph. remap translates the node of every operand;
// constraints with an operand it rejects are dropped. Refs stay valid in
// the copy.
func (g *Graph[K]) Clone(remap func(K) (K, bool)) *Graph[K] {
	out := New[K](WithLogger(g.logger))
	out.Absorb(g, remap)
	return out
}

// Absorb appends every slot and pending constraint of src. The returned
// offset must be added to src refs to address the copies.
func (g *Graph[K]) Absorb(src *Graph[K], remap func(K) (K, bool)) Ref {
	off := Ref(len(g.cells))
	for i := range src.cells {
		g.parent = append(g.parent, src.parent[i]+off)
		g.rank = append(g.rank, src.rank[i])
		g.cells = append(g.cells, src.cells[i])
	}
	for _, c := range src.cons {
		if c == nil {
			continue
		}
		nc := *c
		keep := true
		for _, op := range nc.operands() {
			n, ok := remap(op.Node)
			if !ok {
				keep = false
				break
			}
			op.Node = n
			op.Ref += off
		}
		if keep {
			g.add(&nc)
		}
	}
	return off
}

// ReplaceNode points every operand owned by from at to.
func (g *Graph[K]) ReplaceNode(from, to K) {
	for _, c := range g.cons {
		if c == nil {
			continue
		}
		for _, op := range c.operands() {
			if op.Node == from {
				op.Node = to
			}
		}
	}
}

// ClearConstraints discards every pending constraint. The cells stay.
func (g *Graph[K]) ClearConstraints() {
	g.cons = nil
	g.touch = make(map[Ref][]int)
	g.queue = newWorklist()
}

// DropNode discards the constraints that mention n.
func (g *Graph[K]) DropNode(n K) {
	for id, c := range g.cons {
		if c == nil {
			continue
		}
		for _, op := range c.operands() {
			if op.Node == n {
				g.cons[id] = nil
				break
			}
		}
	}
}

// ConstKind is the classification policy for integer constants: small
// non-zero magnitudes are numbers, anything else may be an address.
func ConstKind(v int64) Kind {
	if v != 0 && v > -900 && v < 900 {
		return Number
	}
	return Unknown
}

// UnknownRange is the offset of a non-constant integer: any multiple of 1.
func UnknownRange() schema.OffsetRange {
	return schema.OffsetRange{Access: []schema.ArrayOffset{{Size: 1}}}
}
