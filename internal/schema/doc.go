// Package schema defines the vocabulary of the type inference engine.
//
// A type variable is a base (a name, a primitive, an integer constant bound
// to a use site, or the emulated linear memory) followed by a path of field
// labels:
//
//	printf.in_0.load8
//	#sint
//	MEMORY.@16+4
//
// Type variables are interned in a Pool. Two handles from the same pool are
// structurally equal exactly when they are the same pointer, which makes
// them cheap map keys for the constraint graph.
//
// The package also contains the textual constraint parser used by summary
// overrides and program descriptions, and the Namer that hands out fresh
// numeric suffixes during one analysis run.
package schema
