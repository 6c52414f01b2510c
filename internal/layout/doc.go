// Package layout turns a sketch graph into memory layouts and C types.
//
// After post-processing, a sketch node that is a pointer describes what it
// points to through its out edges: `load` edges read a value at offset 0
// and `@off+stride` recall edges derive pointers into the same object.
// OrganizeTypes classifies each pointer node as
//
//	simple   at most one load and no offsets
//	array    a single `@0+stride` edge
//	struct   fields at fixed offsets, with strided groups as array fields
//	union    overlapping fields, split greedily into non-overlapping panels
//
// rewriting the graph so every field hangs off its own node. The layouts
// are then rendered as C declarations by a Declarer.
package layout
