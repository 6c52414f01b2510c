package rexp

import (
	"fmt"
	"slices"

	"github.com/NotDec/NotDec-sub000/internal/graph"
	"github.com/NotDec/NotDec-sub000/internal/schema"
)

// TempPrefix starts the names of the variables introduced for stars.
const TempPrefix = "__temp_"

// StartToEnd returns the expression of every #Start to #End path of g.
func StartToEnd(g *graph.Graph) *Expr {
	if !g.HasStart() || !g.HasEnd() {
		return nullExpr
	}
	return Solve(g.Start(), PathSequence(g)).To(g.End())
}

// ToConstraints converts the expression of the accepted paths into subtype
// constraints. Every path must have the shape
//
//	RecallBase (Recall)* (Forget)* ForgetBase
//
// A star becomes a fresh variable t with the recursive constraint spelled
// by its body, and the enclosing path is cut in two at t. Paths walked on
// the contravariant side yield the same constraint reversed; duplicates
// are dropped. Names come from namer, or from a local counter when nil.
func ToConstraints(pool *schema.Pool, namer *schema.Namer, e *Expr) ([]schema.Constraint, error) {
	if e.IsEmpty() || e.IsNull() {
		return nil, nil
	}
	if namer == nil {
		namer = schema.NewNamer()
	}
	c := &converter{pool: pool, namer: namer, temps: make(map[*schema.TypeVar]bool)}
	final, err := c.sequences(e)
	if err != nil {
		return nil, err
	}
	all := append(c.recursive, final...)

	// Stars nest outside in, so a temp's variance is fixed by a sequence
	// emitted after the one that uses it.
	variance := make(map[*schema.TypeVar]schema.Variance)
	perSeq := make([][]schema.Constraint, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		cons, err := c.normalize(all[i], variance)
		if err != nil {
			return nil, err
		}
		perSeq[i] = cons
	}

	var out []schema.Constraint
	seen := make(map[string]bool)
	for _, cons := range perSeq {
		for _, con := range cons {
			if con.Sub == con.Sup {
				continue
			}
			k := con.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, con)
		}
	}
	return out, nil
}

type converter struct {
	pool      *schema.Pool
	namer     *schema.Namer
	temps     map[*schema.TypeVar]bool
	recursive [][]graph.EdgeLabel
}

// sequences expands e into the label sequences it spells, with stars cut
// out into recursive sequences.
func (c *converter) sequences(e *Expr) ([][]graph.EdgeLabel, error) {
	switch e.kind {
	case KindOr:
		var out [][]graph.EdgeLabel
		for _, m := range e.elems {
			r, err := c.sequences(m)
			if err != nil {
				return nil, err
			}
			out = append(out, r...)
		}
		return out, nil
	case KindAnd:
		if len(e.elems) == 0 {
			return nil, fmt.Errorf("rexp: empty concatenation")
		}
		cur, err := c.sequences(e.elems[0])
		if err != nil {
			return nil, err
		}
		for _, m := range e.elems[1:] {
			r, err := c.sequences(m)
			if err != nil {
				return nil, err
			}
			next := make([][]graph.EdgeLabel, 0, len(cur)*len(r))
			for _, a := range cur {
				for _, b := range r {
					next = append(next, append(slices.Clone(a), b...))
				}
			}
			cur = next
		}
		return cur, nil
	case KindStar:
		first, okF := First(e.inner)
		last, okL := Last(e.inner)
		if okF && okL && first.Kind != last.Kind {
			return nil, fmt.Errorf("rexp: star with mixed recall and forget: %s", e)
		}
		temp := c.pool.Var(c.namer.Name(TempPrefix))
		c.temps[temp] = true
		rb := graph.RecallBase(temp, schema.Covariant)
		fb := graph.ForgetBase(temp, schema.Covariant)
		seq, err := c.sequences(Concat(Concat(Label(rb), e.inner), Label(fb)))
		if err != nil {
			return nil, err
		}
		c.recursive = append(c.recursive, seq...)
		return [][]graph.EdgeLabel{{fb, rb}}, nil
	case KindNode:
		return [][]graph.EdgeLabel{{e.label}}, nil
	}
	return nil, fmt.Errorf("rexp: %s left in a simplified expression", e)
}

type segment struct {
	sub, sup   *schema.TypeVar
	recalls    []schema.FieldLabel
	forgets    []schema.FieldLabel
	mid        schema.Variance
	forgetting bool
}

func (s *segment) constraint() schema.Constraint {
	sub := s.sub
	for _, l := range s.recalls {
		sub = sub.PushLabel(l)
	}
	sup := s.sup
	for i := len(s.forgets) - 1; i >= 0; i-- {
		sup = sup.PushLabel(s.forgets[i])
	}
	if s.mid == schema.Contravariant {
		sub, sup = sup, sub
	}
	return schema.Constraint{Sub: sub, Sup: sup}
}

// normalize cuts one label sequence at its temp variables and reads a
// constraint off every piece. The variance is tracked along the path to
// orient the constraint and to give each temp the variance of the node it
// stands for.
func (c *converter) normalize(path []graph.EdgeLabel, variance map[*schema.TypeVar]schema.Variance) ([]schema.Constraint, error) {
	if len(path) < 2 || !path[0].IsRecallBase() {
		return nil, fmt.Errorf("rexp: path %v does not start at a base", path)
	}
	var out []schema.Constraint
	var cur schema.Variance
	seg := &segment{}
	for i, l := range path {
		switch l.Kind {
		case graph.EdgeRecallBase:
			if seg.sub != nil {
				return nil, fmt.Errorf("rexp: recall base in the middle of %v", path)
			}
			seg.sub = l.Base
			if c.temps[l.Base] {
				cur = variance[l.Base]
			} else {
				cur = l.Variance
			}
		case graph.EdgeRecall:
			if seg.forgetting {
				return nil, fmt.Errorf("rexp: recall after forget in %v", path)
			}
			seg.recalls = append(seg.recalls, l.Field)
			cur = cur.Combine(l.Field.Variance())
		case graph.EdgeForget:
			if !seg.forgetting {
				seg.mid = cur
				seg.forgetting = true
			}
			seg.forgets = append(seg.forgets, l.Field)
			cur = cur.Combine(l.Field.Variance())
		case graph.EdgeForgetBase:
			if !seg.forgetting {
				seg.mid = cur
			}
			seg.sup = l.Base
			out = append(out, seg.constraint())
			if i == len(path)-1 {
				continue
			}
			if !c.temps[l.Base] {
				return nil, fmt.Errorf("rexp: path %v passes through %s", path, l.Base)
			}
			variance[l.Base] = cur
			seg = &segment{}
		default:
			return nil, fmt.Errorf("rexp: unexpected %s label in %v", l.Kind, path)
		}
	}
	if seg.sup == nil {
		return nil, fmt.Errorf("rexp: path %v does not end at a base", path)
	}
	return out, nil
}
