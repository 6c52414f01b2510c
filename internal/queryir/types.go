package queryir

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: Basic table access with filtering and field bindings
//   - Join: Combine two selects with an inner join
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal value
//   - FieldEquals: field = field (join conditions)
//   - Contains: field contains a substring
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Binding selects one field of a query result under a name.
type Binding struct {
	Field string // Source column, optionally qualified ("runs.seq")
	As    string // Result name; empty means the column name
}

// Name returns the result name of the binding.
func (b Binding) Name() string {
	if b.As != "" {
		return b.As
	}
	return b.Field
}

// Select represents a basic table access query with filtering.
//
// Semantics:
//
//	SELECT <bindings> FROM <from> WHERE <filter> ORDER BY <table order>
//
// Example:
//
//	Select{
//	  From:   "value_types",
//	  Filter: Equals{Field: "value", Value: "callee#arg0"},
//	  Bindings: []Binding{
//	    {Field: "run_id"},
//	    {Field: "upper", As: "type"},
//	  },
//	}
//
// Bindings keep their order; result columns come back in the same order.
type Select struct {
	From     string    // Table name (e.g., "value_types")
	Filter   Predicate // WHERE conditions (nil = no filter)
	Bindings []Binding // Result columns, in order
}

func (Select) queryNode() {}

// Join represents an inner join of two selects.
//
// Semantics:
//
//	SELECT <left bindings>, <right bindings>
//	FROM <left> INNER JOIN <right> ON <on>
//	WHERE <left filter> AND <right filter> AND <filter>
//
// Rows are ordered by the left table, then the right table. On is
// required; cross joins are not supported.
type Join struct {
	Left   Select
	Right  Select
	On     Predicate // Join condition, typically FieldEquals
	Filter Predicate // Conditions over the joined row (nil = none)
}

func (Join) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// Value must be a string or an integer (int or int64). It is always passed
// as a query parameter, never interpolated.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// FieldEquals compares two fields, usually of different tables.
//
//	FieldEquals{Left: "runs.id", Right: "value_types.run_id"}
type FieldEquals struct {
	Left  string
	Right string
}

func (FieldEquals) predicateNode() {}

// Contains holds when the text of Field contains Substring.
//
// Matching is byte-wise and case sensitive.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
//
// An empty Predicates slice means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
