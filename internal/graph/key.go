package graph

import (
	"cmp"
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// NodeID addresses a node in its graph's arena.
type NodeID int32

// NoNode is returned by lookups that found nothing.
const NoNode NodeID = -1

// NodeKey identifies a node: the full type variable, the suffix variance and
// the layer after LayerSplit.
type NodeKey struct {
	Var      *schema.TypeVar
	Variance schema.Variance
	NewLayer bool
}

// Key builds the covariant, first layer key for v.
func Key(v *schema.TypeVar) NodeKey {
	return NodeKey{Var: v}
}

// KeyOf builds a first layer key with an explicit variance.
func KeyOf(v *schema.TypeVar, variance schema.Variance) NodeKey {
	return NodeKey{Var: v, Variance: variance}
}

// Dual returns the key with the opposite variance.
func (k NodeKey) Dual() NodeKey {
	k.Variance = k.Variance.Invert()
	return k
}

// ForgetOnce pops the last label of the variable and folds its variance
// into the suffix variance. ok is false for a bare base.
func (k NodeKey) ForgetOnce() (label schema.FieldLabel, next NodeKey, ok bool) {
	prefix, label, ok := k.Var.PopLabel()
	if !ok {
		return schema.FieldLabel{}, k, false
	}
	next = NodeKey{
		Var:      prefix,
		Variance: k.Variance.Combine(label.Variance()),
		NewLayer: k.NewLayer,
	}
	return label, next, true
}

// Compare orders keys by variable, variance and layer.
func (k NodeKey) Compare(o NodeKey) int {
	if c := k.Var.Compare(o.Var); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Variance, o.Variance); c != 0 {
		return c
	}
	switch {
	case k.NewLayer == o.NewLayer:
		return 0
	case o.NewLayer:
		return -1
	}
	return 1
}

func (k NodeKey) String() string {
	s := k.Var.String() + k.Variance.String()
	if k.NewLayer {
		s += "'"
	}
	return s
}

// EdgeKind is the kind of an edge label.
type EdgeKind uint8

const (
	EdgeOne EdgeKind = iota + 1
	EdgeRecall
	EdgeForget
	EdgeRecallBase
	EdgeForgetBase
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeOne:
		return "one"
	case EdgeRecall:
		return "recall"
	case EdgeForget:
		return "forget"
	case EdgeRecallBase:
		return "recall_base"
	case EdgeForgetBase:
		return "forget_base"
	default:
		return fmt.Sprintf("EdgeKind(%d)", k)
	}
}

// EdgeLabel is the label of an edge. Field is set for Recall and Forget;
// Base and Variance for RecallBase and ForgetBase.
type EdgeLabel struct {
	Kind     EdgeKind
	Field    schema.FieldLabel
	Base     *schema.TypeVar
	Variance schema.Variance
}

// One is the subtype edge label.
func One() EdgeLabel { return EdgeLabel{Kind: EdgeOne} }

// Recall pushes l.
func Recall(l schema.FieldLabel) EdgeLabel { return EdgeLabel{Kind: EdgeRecall, Field: l} }

// Forget pops l.
func Forget(l schema.FieldLabel) EdgeLabel { return EdgeLabel{Kind: EdgeForget, Field: l} }

// RecallBase enters base b under variance v.
func RecallBase(b *schema.TypeVar, v schema.Variance) EdgeLabel {
	return EdgeLabel{Kind: EdgeRecallBase, Base: b, Variance: v}
}

// ForgetBase leaves into base b under variance v.
func ForgetBase(b *schema.TypeVar, v schema.Variance) EdgeLabel {
	return EdgeLabel{Kind: EdgeForgetBase, Base: b, Variance: v}
}

func (l EdgeLabel) IsOne() bool        { return l.Kind == EdgeOne }
func (l EdgeLabel) IsRecall() bool     { return l.Kind == EdgeRecall }
func (l EdgeLabel) IsForget() bool     { return l.Kind == EdgeForget }
func (l EdgeLabel) IsRecallBase() bool { return l.Kind == EdgeRecallBase }
func (l EdgeLabel) IsForgetBase() bool { return l.Kind == EdgeForgetBase }

// HasField reports whether the label carries a field label.
func (l EdgeLabel) HasField() bool { return l.Kind == EdgeRecall || l.Kind == EdgeForget }

// IsForgetPrimitive reports whether l leaves into a primitive base.
func (l EdgeLabel) IsForgetPrimitive() bool {
	return l.Kind == EdgeForgetBase && l.Base.IsPrimitive()
}

// Equal reports structural equality.
func (l EdgeLabel) Equal(o EdgeLabel) bool {
	return l.Compare(o) == 0
}

// Compare orders labels by kind, then payload.
func (l EdgeLabel) Compare(o EdgeLabel) int {
	if c := cmp.Compare(l.Kind, o.Kind); c != 0 {
		return c
	}
	switch l.Kind {
	case EdgeRecall, EdgeForget:
		return l.Field.Compare(o.Field)
	case EdgeRecallBase, EdgeForgetBase:
		if c := l.Base.Compare(o.Base); c != 0 {
			return c
		}
		return cmp.Compare(l.Variance, o.Variance)
	}
	return 0
}

func (l EdgeLabel) String() string {
	switch l.Kind {
	case EdgeOne:
		return "_1_"
	case EdgeRecall:
		return "recall " + l.Field.String()
	case EdgeForget:
		return "forget " + l.Field.String()
	case EdgeRecallBase:
		return "recall " + l.Base.String() + l.Variance.String()
	case EdgeForgetBase:
		return "forget " + l.Base.String() + l.Variance.String()
	}
	return l.Kind.String()
}

// Edge is a directed labelled edge.
type Edge struct {
	From  NodeID
	To    NodeID
	Label EdgeLabel
}
