package schema

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// BaseKind discriminates Base.
type BaseKind uint8

const (
	// BaseNamed is a function, argument, value or temporary name.
	BaseNamed BaseKind = iota + 1
	// BasePrimitive is a primitive type such as #int or #double.
	BasePrimitive
	// BaseIntConst is an integer constant tied to the instruction using it.
	BaseIntConst
	// BaseMemory is the emulated linear memory.
	BaseMemory
)

// MemoryName is the printed name of the memory base.
const MemoryName = "MEMORY"

// Base is the head of a type variable.
type Base struct {
	Kind BaseKind

	// Name is the variable name, or the primitive name without '#'.
	Name string

	// Value and User identify an integer constant at one use site.
	Value OffsetRange
	User  string

	// Instance distinguishes copies of a callee made at different call
	// sites. Zero means not instantiated.
	Instance uint64

	// Actual marks the callee-side variables seen from a call site.
	Actual bool
}

// Named returns a named base.
func Named(name string) Base { return Base{Kind: BaseNamed, Name: name} }

// Primitive returns a primitive base. A leading '#' is stripped.
func Primitive(name string) Base {
	return Base{Kind: BasePrimitive, Name: strings.TrimPrefix(name, "#")}
}

// IntConst returns an integer constant base used at user.
func IntConst(v OffsetRange, user string) Base {
	return Base{Kind: BaseIntConst, Value: v, User: user}
}

// Memory returns the memory base.
func Memory() Base { return Base{Kind: BaseMemory} }

// String renders the base.
func (b Base) String() string {
	var s string
	switch b.Kind {
	case BasePrimitive:
		return "#" + b.Name
	case BaseIntConst:
		s = "#Int#" + b.Value.String() + "_" + b.User
	case BaseMemory:
		s = MemoryName
	default:
		s = b.Name
	}
	if b.Instance != 0 {
		s += "#" + strconv.FormatUint(b.Instance, 10)
	}
	if b.Actual {
		s += "!act"
	}
	return s
}

// TypeVar is an interned type variable. Handles from the same Pool are
// equal exactly when they are the same pointer.
type TypeVar struct {
	pool   *Pool
	base   Base
	labels []FieldLabel
	key    string
}

// Base returns the head of the variable.
func (tv *TypeVar) Base() Base { return tv.base }

// Labels returns a copy of the label path.
func (tv *TypeVar) Labels() []FieldLabel { return slices.Clone(tv.labels) }

// NumLabels returns the path length.
func (tv *TypeVar) NumLabels() int { return len(tv.labels) }

// HasLabel reports whether the path is non-empty.
func (tv *TypeVar) HasLabel() bool { return len(tv.labels) > 0 }

// LastLabel returns the final label of the path.
func (tv *TypeVar) LastLabel() (FieldLabel, bool) {
	if len(tv.labels) == 0 {
		return FieldLabel{}, false
	}
	return tv.labels[len(tv.labels)-1], true
}

// Variance returns the variance of the whole path.
func (tv *TypeVar) Variance() Variance { return PathVariance(tv.labels) }

// String returns the canonical text form, also used for ordering.
func (tv *TypeVar) String() string { return tv.key }

// Pool returns the pool that interned tv.
func (tv *TypeVar) Pool() *Pool { return tv.pool }

func (tv *TypeVar) IsPrimitive() bool { return tv.base.Kind == BasePrimitive }
func (tv *TypeVar) IsIntConst() bool  { return tv.base.Kind == BaseIntConst }
func (tv *TypeVar) IsMemory() bool    { return tv.base.Kind == BaseMemory }

// BaseName returns the name of a named, primitive or memory base.
func (tv *TypeVar) BaseName() string {
	if tv.base.Kind == BaseMemory {
		return MemoryName
	}
	return tv.base.Name
}

// HasBaseName reports whether the base carries a name, which excludes
// integer constants.
func (tv *TypeVar) HasBaseName() bool { return tv.base.Kind != BaseIntConst }

// PushLabel returns tv extended by l.
func (tv *TypeVar) PushLabel(l FieldLabel) *TypeVar {
	labels := make([]FieldLabel, len(tv.labels), len(tv.labels)+1)
	copy(labels, tv.labels)
	return tv.pool.Intern(tv.base, append(labels, l))
}

// PopLabel removes the last label.
func (tv *TypeVar) PopLabel() (*TypeVar, FieldLabel, bool) {
	if len(tv.labels) == 0 {
		return tv, FieldLabel{}, false
	}
	last := tv.labels[len(tv.labels)-1]
	return tv.pool.Intern(tv.base, tv.labels[:len(tv.labels)-1]), last, true
}

// ToBase drops the whole path.
func (tv *TypeVar) ToBase() *TypeVar {
	if len(tv.labels) == 0 {
		return tv
	}
	return tv.pool.Intern(tv.base, nil)
}

// WithBase keeps the path and replaces the head.
func (tv *TypeVar) WithBase(b Base) *TypeVar {
	return tv.pool.Intern(b, tv.labels)
}

// Compare orders variables by their canonical text.
func (tv *TypeVar) Compare(o *TypeVar) int {
	return strings.Compare(tv.key, o.key)
}

func renderKey(b Base, labels []FieldLabel) string {
	var sb strings.Builder
	sb.WriteString(b.String())
	for _, l := range labels {
		sb.WriteByte('.')
		sb.WriteString(l.String())
	}
	return sb.String()
}

// Pool interns type variables for one analysis run. It is safe for
// concurrent use so several generators can share it.
type Pool struct {
	mu   sync.Mutex
	vars map[string]*TypeVar
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{vars: make(map[string]*TypeVar)}
}

// Intern returns the unique handle for base plus labels.
func (p *Pool) Intern(b Base, labels []FieldLabel) *TypeVar {
	key := renderKey(b, labels)
	p.mu.Lock()
	defer p.mu.Unlock()
	if tv, ok := p.vars[key]; ok {
		return tv
	}
	tv := &TypeVar{pool: p, base: b, labels: slices.Clone(labels), key: key}
	p.vars[key] = tv
	return tv
}

// Var interns a labelless named variable.
func (p *Pool) Var(name string) *TypeVar { return p.Intern(Named(name), nil) }

// Prim interns a primitive variable. A leading '#' is optional.
func (p *Pool) Prim(name string) *TypeVar { return p.Intern(Primitive(name), nil) }

// Memory interns the memory variable.
func (p *Pool) Memory() *TypeVar { return p.Intern(Memory(), nil) }

// Len returns the number of interned variables.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.vars)
}
