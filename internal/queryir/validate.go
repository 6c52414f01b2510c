package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Schema lists the columns of every table a query may read.
type Schema map[string][]string

// HistorySchema describes the run history tables of the store.
var HistorySchema = Schema{
	"runs":            {"id", "seq", "program_hash"},
	"value_types":     {"run_id", "value", "upper", "lower", "size"},
	"unhandled_calls": {"run_id", "call", "caller", "callee", "reason"},
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// ValidIdent reports whether name is a column or table.column reference.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// ValidationResult contains the problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists unknown tables, unresolved or ambiguous fields and
	// unsupported literal types, in traversal order.
	Problems []string
}

// Err returns the problems as a single error, or nil when the query is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Problems, "; "))
}

// Validate checks a query against a schema.
//
// Rules:
//  1. Tables must exist in the schema
//  2. Every field must resolve to exactly one column in scope
//  3. Literal values must be strings or integers
//  4. Bindings must be explicit (no "*") with unique result names
//  5. Joins must have an ON condition
//
// In a Join, the scope of every predicate and binding is both tables, so an
// unqualified field that both tables have is ambiguous.
//
// Validate is a pure function with no side effects.
func Validate(query Query, schema Schema) ValidationResult {
	v := &validator{schema: schema}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	schema   Schema
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		if v.checkTable(query.From) {
			scope := []string{query.From}
			v.validateBindings(query.Bindings, scope, nil)
			v.validatePredicate(query.Filter, scope)
		}
	case Join:
		left := v.checkTable(query.Left.From)
		right := v.checkTable(query.Right.From)
		if !left || !right {
			return
		}
		if query.Left.From == query.Right.From {
			v.addProblem("self join on %s is not supported", query.Left.From)
			return
		}
		scope := []string{query.Left.From, query.Right.From}
		names := map[string]bool{}
		v.validateBindings(query.Left.Bindings, scope, names)
		v.validateBindings(query.Right.Bindings, scope, names)
		v.validatePredicate(query.Left.Filter, scope)
		v.validatePredicate(query.Right.Filter, scope)
		v.validatePredicate(query.Filter, scope)
		if query.On == nil {
			v.addProblem("join of %s and %s has no ON condition", query.Left.From, query.Right.From)
		} else {
			v.validatePredicate(query.On, scope)
		}
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) checkTable(table string) bool {
	if _, ok := v.schema[table]; !ok {
		v.addProblem("unknown table %q", table)
		return false
	}
	return true
}

func (v *validator) validateBindings(bindings []Binding, scope []string, names map[string]bool) {
	if names == nil {
		names = map[string]bool{}
	}
	for _, b := range bindings {
		if b.Field == "*" {
			v.addProblem("wildcard binding is not supported")
			continue
		}
		v.resolveField(b.Field, scope)
		name := b.Name()
		if b.As != "" && (!ValidIdent(b.As) || strings.Contains(b.As, ".")) {
			v.addProblem("invalid binding name %q", b.As)
		}
		if names[name] {
			v.addProblem("duplicate binding %q", name)
		}
		names[name] = true
	}
}

func (v *validator) validatePredicate(p Predicate, scope []string) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.resolveField(pred.Field, scope)
		switch pred.Value.(type) {
		case string, int, int64:
		default:
			v.addProblem("unsupported value type %T for %s", pred.Value, pred.Field)
		}
	case FieldEquals:
		v.resolveField(pred.Left, scope)
		v.resolveField(pred.Right, scope)
	case Contains:
		v.resolveField(pred.Field, scope)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, scope)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

// resolveField checks that field names exactly one column in scope.
func (v *validator) resolveField(field string, scope []string) {
	if !ValidIdent(field) {
		v.addProblem("invalid field %q", field)
		return
	}
	if table, column, ok := strings.Cut(field, "."); ok {
		if !slices.Contains(scope, table) {
			v.addProblem("table %q is not part of the query", table)
			return
		}
		if !slices.Contains(v.schema[table], column) {
			v.addProblem("unknown field %q", field)
		}
		return
	}

	var owners []string
	for _, table := range scope {
		if slices.Contains(v.schema[table], field) {
			owners = append(owners, table)
		}
	}
	switch len(owners) {
	case 0:
		v.addProblem("unknown field %q", field)
	case 1:
	default:
		v.addProblem("ambiguous field %q (in %s)", field, strings.Join(owners, ", "))
	}
}
