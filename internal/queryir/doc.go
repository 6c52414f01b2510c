// Package queryir provides a small query intermediate representation over
// the run history kept by the store.
//
// Filters typed on the command line are parsed into predicates
// (ParseFilter), checked against the known tables (Validate) and compiled
// to parameterized SQL by the querysql package:
//
//	[filter text] → [Query IR] → [querysql] → SQLite
//
// QUERY SHAPES:
//
//   - Select(from, filter, bindings) reads one table
//   - Join(left, right, on, filter) is an inner join of two selects
//
// Predicates are Equals (field = literal), FieldEquals (field = field),
// Contains (substring match) and And. There is no OR, no NULL and no
// aggregation.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so the compiler's type
// switches are exhaustive:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	case Join:
//	    // Handle join
//	}
//
// VALUES:
//
// Literal values are strings or integers. Floats are rejected: run
// history never stores them and their text form is not canonical.
package queryir
