package schema

// Variance is the polarity of a position in a type.
type Variance uint8

const (
	// Covariant positions preserve the subtype direction.
	Covariant Variance = iota
	// Contravariant positions flip the subtype direction.
	Contravariant
)

// Combine returns the variance of a path made of a prefix with variance v
// followed by a suffix with variance o.
func (v Variance) Combine(o Variance) Variance {
	return v ^ o
}

// Invert returns the opposite variance.
func (v Variance) Invert() Variance {
	return v ^ 1
}

// String renders the variance as ⊕ or ⊖.
func (v Variance) String() string {
	if v == Contravariant {
		return "⊖"
	}
	return "⊕"
}
