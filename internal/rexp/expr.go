package rexp

import (
	"slices"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// Kind is the kind of an expression.
type Kind uint8

const (
	KindNull Kind = iota
	KindEmpty
	KindNode
	KindOr
	KindAnd
	KindStar
)

// Expr is an immutable path expression. Build it with the constructors;
// the zero value is not valid.
type Expr struct {
	kind  Kind
	label graph.EdgeLabel
	elems []*Expr
	inner *Expr
	str   string
}

var (
	nullExpr  = &Expr{kind: KindNull, str: "∅"}
	emptyExpr = &Expr{kind: KindEmpty, str: "ε"}
)

// Null returns the expression with no path.
func Null() *Expr { return nullExpr }

// Empty returns the empty path.
func Empty() *Expr { return emptyExpr }

// Label returns the single-edge expression. A One edge spells nothing and
// becomes Empty.
func Label(l graph.EdgeLabel) *Expr {
	if l.IsOne() {
		return emptyExpr
	}
	return &Expr{kind: KindNode, label: l, str: l.String()}
}

// Star returns (e)*.
func Star(e *Expr) *Expr {
	return &Expr{kind: KindStar, inner: e, str: "(" + e.str + ")*"}
}

// Concat returns a . b, flattening nested concatenations.
func Concat(a, b *Expr) *Expr {
	var elems []*Expr
	for _, e := range []*Expr{a, b} {
		if e.kind == KindAnd {
			elems = append(elems, e.elems...)
		} else {
			elems = append(elems, e)
		}
	}
	return newAnd(elems)
}

// Union returns a U b, flattening nested unions.
func Union(a, b *Expr) *Expr {
	var elems []*Expr
	for _, e := range []*Expr{a, b} {
		if e.kind == KindOr {
			elems = append(elems, e.elems...)
		} else {
			elems = append(elems, e)
		}
	}
	return newOr(elems)
}

func newAnd(elems []*Expr) *Expr {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.str
	}
	return &Expr{kind: KindAnd, elems: elems, str: "(" + strings.Join(parts, " . ") + ")"}
}

// newOr sorts and deduplicates the members by their rendering so that
// equal sets render equally.
func newOr(elems []*Expr) *Expr {
	sorted := slices.Clone(elems)
	slices.SortFunc(sorted, func(a, b *Expr) int { return strings.Compare(a.str, b.str) })
	sorted = slices.CompactFunc(sorted, func(a, b *Expr) bool { return a.str == b.str })
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = e.str
	}
	return &Expr{kind: KindOr, elems: sorted, str: "(" + strings.Join(parts, " U ") + ")"}
}

// Kind returns the expression kind.
func (e *Expr) Kind() Kind { return e.kind }

// IsNull reports whether e is ∅.
func (e *Expr) IsNull() bool { return e.kind == KindNull }

// IsEmpty reports whether e is ε.
func (e *Expr) IsEmpty() bool { return e.kind == KindEmpty }

// EdgeLabel returns the label of a single-edge expression.
func (e *Expr) EdgeLabel() graph.EdgeLabel { return e.label }

// Elems returns the members of an Or or And.
func (e *Expr) Elems() []*Expr { return slices.Clone(e.elems) }

// Inner returns the body of a Star.
func (e *Expr) Inner() *Expr { return e.inner }

func (e *Expr) String() string { return e.str }

// Equal compares by rendering, which is canonical for unions.
func (e *Expr) Equal(o *Expr) bool { return e.str == o.str }

// Simplify simplifies the outermost layer of e:
//   - nested Or and And are flattened, ∅ members of Or and ε members of
//     And dropped, and an And containing ∅ is ∅
//   - recall l . forget l cancels, and so do forget and recall of the same
//     offset
//   - forget then recall of a non-offset label is not a valid path and
//     yields ∅
//   - (a*)* is a*, and ε* and ∅* are ε
func Simplify(e *Expr) *Expr {
	switch e.kind {
	case KindOr:
		return simplifyOr(e)
	case KindAnd:
		return simplifyAnd(e)
	case KindStar:
		switch e.inner.kind {
		case KindStar:
			return e.inner
		case KindEmpty, KindNull:
			return emptyExpr
		}
	}
	return e
}

func simplifyOr(e *Expr) *Expr {
	var elems []*Expr
	for _, m := range e.elems {
		switch m.kind {
		case KindOr:
			elems = append(elems, m.elems...)
		case KindNull:
		default:
			elems = append(elems, m)
		}
	}
	switch len(elems) {
	case 0:
		return nullExpr
	case 1:
		return elems[0]
	}
	out := newOr(elems)
	if len(out.elems) == 1 {
		return out.elems[0]
	}
	return out
}

func simplifyAnd(e *Expr) *Expr {
	var elems []*Expr
	for _, m := range e.elems {
		switch m.kind {
		case KindAnd:
			elems = append(elems, m.elems...)
		case KindEmpty:
		case KindNull:
			return nullExpr
		default:
			elems = append(elems, m)
		}
	}
	for i := 0; i+1 < len(elems); i++ {
		a, b := elems[i], elems[i+1]
		if a.kind != KindNode || b.kind != KindNode {
			continue
		}
		if a.label.IsForget() && b.label.IsRecall() &&
			!a.label.Field.IsOffset() && !b.label.Field.IsOffset() {
			return nullExpr
		}
	}
	for cancelPairs(&elems) {
	}
	switch len(elems) {
	case 0:
		return emptyExpr
	case 1:
		return elems[0]
	}
	return newAnd(elems)
}

// cancelPairs removes adjacent pairs that cancel out and reports whether
// it removed any.
func cancelPairs(elems *[]*Expr) bool {
	v := *elems
	out := make([]*Expr, 0, len(v))
	for i := 0; i < len(v); i++ {
		if i+1 < len(v) && cancels(v[i], v[i+1]) {
			i++
			continue
		}
		out = append(out, v[i])
	}
	if len(out) == len(v) {
		return false
	}
	*elems = out
	return true
}

func cancels(a, b *Expr) bool {
	if a.kind != KindNode || b.kind != KindNode {
		return false
	}
	la, lb := a.label, b.label
	if la.IsRecall() && lb.IsForget() && la.Field.Equal(lb.Field) {
		return true
	}
	return la.IsForget() && lb.IsRecall() && la.Field.IsOffset() && lb.Field.IsOffset() &&
		la.Field.Range.Equal(lb.Field.Range)
}

// First returns the first edge label the expression can spell.
func First(e *Expr) (graph.EdgeLabel, bool) {
	switch e.kind {
	case KindNode:
		return e.label, true
	case KindOr, KindAnd:
		for _, m := range e.elems {
			if l, ok := First(m); ok {
				return l, true
			}
		}
	case KindStar:
		return First(e.inner)
	}
	return graph.EdgeLabel{}, false
}

// Last returns the last edge label the expression can spell.
func Last(e *Expr) (graph.EdgeLabel, bool) {
	switch e.kind {
	case KindNode:
		return e.label, true
	case KindOr, KindAnd:
		for i := len(e.elems) - 1; i >= 0; i-- {
			if l, ok := Last(e.elems[i]); ok {
				return l, true
			}
		}
	case KindStar:
		return Last(e.inner)
	}
	return graph.EdgeLabel{}, false
}
