package pni

// rule is one row of a rule table, indexed left, right, result.
type rule [3]byte

var addRules = []rule{
	{'i', 'i', 'I'}, {'I', 'I', 'i'}, {'p', 'I', 'P'},
	{'P', 'i', 'p'}, {'I', 'p', 'P'}, {'i', 'P', 'p'},
}

var subRules = []rule{
	{'i', 'I', 'I'}, {'I', 'i', 'i'}, {'P', 'i', 'p'}, {'P', 'p', 'I'},
	{'p', 'P', 'i'}, {'p', 'i', 'P'}, {'p', 'I', 'p'},
}

func inferred(b byte) (Kind, bool) {
	switch b {
	case 'I':
		return Number, true
	case 'P':
		return Pointer, true
	}
	return Unknown, false
}

// step applies one round of inference to c and returns the roots whose
// cell changed.
func (g *Graph[K]) step(c *Constraint[K]) []Ref {
	roots := [3]Ref{g.Find(c.Left.Ref), g.Find(c.Right.Ref), g.Find(c.Result.Ref)}
	rules := addRules
	if c.Op == OpSub {
		rules = subRules
	}
	if changed, ok := g.applyRules(rules, roots); ok {
		return changed
	}
	if c.Op == OpSub {
		return g.subFallback(roots)
	}
	return g.addFallback(roots)
}

func (g *Graph[K]) applyRules(rules []rule, roots [3]Ref) ([]Ref, bool) {
	for _, r := range rules {
		match := true
		for i, want := range r {
			if _, upper := inferred(want); upper {
				continue
			}
			if g.cells[g.Find(roots[i])].Kind.Char() != want {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		var changed []Ref
		for i, want := range r {
			k, upper := inferred(want)
			if !upper {
				continue
			}
			root := g.Find(roots[i])
			if g.setKind(root, k) {
				changed = append(changed, root)
			}
		}
		return changed, true
	}
	return nil, false
}

func (g *Graph[K]) unknowns(roots [3]Ref) int {
	n := 0
	for _, r := range roots {
		if g.cells[r].Kind == Unknown {
			n++
		}
	}
	return n
}

func (g *Graph[K]) force(changed []Ref, k Kind, rs ...Ref) []Ref {
	for _, r := range rs {
		root := g.Find(r)
		if g.setKind(root, k) {
			changed = append(changed, root)
		}
	}
	return changed
}

// addFallback handles additions no rule matched. Adding a value to itself
// or an identity with the result pins the remaining operand to Number.
func (g *Graph[K]) addFallback(roots [3]Ref) []Ref {
	left, right, result := roots[0], roots[1], roots[2]
	unknown := g.unknowns(roots)
	if unknown < 2 {
		return nil
	}
	switch {
	case left == right:
		return g.force(nil, Number, left, right, result)
	case left == result:
		return g.force(nil, Number, right)
	case right == result:
		return g.force(nil, Number, left)
	case unknown == 2:
		switch {
		case g.cells[left].Kind == Number:
			return []Ref{g.Unify(right, result)}
		case g.cells[right].Kind == Number:
			return []Ref{g.Unify(left, result)}
		}
	}
	return nil
}

// subFallback handles subtractions no rule matched.
func (g *Graph[K]) subFallback(roots [3]Ref) []Ref {
	left, right, result := roots[0], roots[1], roots[2]
	unknown := g.unknowns(roots)
	if unknown < 2 {
		return nil
	}
	switch {
	case result == right:
		return g.force(nil, Number, left, right, result)
	case left == right:
		return g.force(nil, Number, result)
	case left == result:
		return g.force(nil, Number, right)
	case unknown == 2:
		switch {
		case g.cells[right].Kind == Number:
			return []Ref{g.Unify(left, result)}
		case g.cells[result].Kind == Number:
			return []Ref{g.Unify(left, right)}
		}
	}
	return nil
}
