// Package rexp implements path expressions over constraint graph edge
// labels and the path-expression algorithm that reads a summary off a
// split graph.
//
// An expression is one of
//
//	∅        Null, no path
//	ε        Empty, the empty path
//	l        a single edge label
//	(a U b)  Or
//	(a . b)  And, concatenation
//	(a)*     Star
//
// PathSequence orders the edges of a graph so that Solve can compute the
// expression of every path from a source in one pass (Tarjan's path
// expression algorithm); strongly connected parts are first collapsed by
// Gauss-style elimination. ToConstraints turns the expression of all
// #Start to #End paths into subtype constraints, introducing a fresh
// variable for every star.
package rexp
