// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/queryir"
)

// HistoryOrder is the stable row order of each run history table.
var HistoryOrder = map[string][]string{
	"runs":            {"seq"},
	"value_types":     {"run_id", "value"},
	"unhandled_calls": {"run_id", "call"},
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Every query gets an ORDER BY over the table's order key so results are
// deterministic. Literal values always become ? parameters.
type SQLCompiler struct {
	// OrderKeys maps a table to the columns that totally order its rows.
	OrderKeys map[string][]string
}

// NewSQLCompiler creates a compiler for the run history tables.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{OrderKeys: HistoryOrder}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// Compile checks identifiers but not the schema; run queryir.Validate first
// to catch unknown or ambiguous columns.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Join:
		return c.compileJoin(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if err := checkIdent(q.From); err != nil {
		return "", nil, err
	}
	cols, err := compileBindings(q.Bindings)
	if err != nil {
		return "", nil, err
	}
	order, err := c.orderKey(q.From, false)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, q.From)

	where, params, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)
	return sb.String(), params, nil
}

func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	if j.On == nil {
		return "", nil, fmt.Errorf("join of %s and %s has no ON condition", j.Left.From, j.Right.From)
	}
	for _, t := range []string{j.Left.From, j.Right.From} {
		if err := checkIdent(t); err != nil {
			return "", nil, err
		}
	}
	cols, err := compileBindings(append(append([]queryir.Binding(nil), j.Left.Bindings...), j.Right.Bindings...))
	if err != nil {
		return "", nil, err
	}
	on, params, err := c.compilePredicate(j.On)
	if err != nil {
		return "", nil, fmt.Errorf("compile join condition: %w", err)
	}

	leftOrder, err := c.orderKey(j.Left.From, true)
	if err != nil {
		return "", nil, err
	}
	rightOrder, err := c.orderKey(j.Right.From, true)
	if err != nil {
		return "", nil, err
	}

	var filters []queryir.Predicate
	for _, f := range []queryir.Predicate{j.Left.Filter, j.Right.Filter, j.Filter} {
		if f != nil {
			filters = append(filters, f)
		}
	}
	var filter queryir.Predicate
	if len(filters) > 0 {
		filter = queryir.And{Predicates: filters}
	}
	where, whereParams, err := c.compileWhere(filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s INNER JOIN %s ON %s", cols, j.Left.From, j.Right.From, on)
	sb.WriteString(where)
	fmt.Fprintf(&sb, " ORDER BY %s, %s", leftOrder, rightOrder)
	return sb.String(), append(params, whereParams...), nil
}

// compileBindings converts bindings to a SELECT column list, keeping order.
// Example: {Field: "upper", As: "type"} → "upper AS type"
func compileBindings(bindings []queryir.Binding) (string, error) {
	if len(bindings) == 0 {
		return "", fmt.Errorf("query has no bindings")
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if err := checkIdent(b.Field); err != nil {
			return "", err
		}
		if b.As == "" || b.As == b.Field {
			parts = append(parts, b.Field)
			continue
		}
		if err := checkIdent(b.As); err != nil {
			return "", err
		}
		parts = append(parts, b.Field+" AS "+b.As)
	}
	return strings.Join(parts, ", "), nil
}

// orderKey returns the ORDER BY terms for a table. Text columns compare
// with BINARY collation.
func (c *SQLCompiler) orderKey(table string, qualify bool) (string, error) {
	cols, ok := c.OrderKeys[table]
	if !ok || len(cols) == 0 {
		return "", fmt.Errorf("no order key for table %s", table)
	}
	terms := make([]string, len(cols))
	for i, col := range cols {
		if qualify {
			col = table + "." + col
		}
		terms[i] = col + " COLLATE BINARY ASC"
	}
	return strings.Join(terms, ", "), nil
}

func (c *SQLCompiler) compileWhere(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// Values are never interpolated.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		if err := checkIdent(pred.Field); err != nil {
			return "", nil, err
		}
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value for %s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil
	case queryir.FieldEquals:
		if err := checkIdent(pred.Left); err != nil {
			return "", nil, err
		}
		if err := checkIdent(pred.Right); err != nil {
			return "", nil, err
		}
		return pred.Left + " = " + pred.Right, nil, nil
	case queryir.Contains:
		if err := checkIdent(pred.Field); err != nil {
			return "", nil, err
		}
		// instr avoids LIKE wildcards in the substring.
		return "instr(" + pred.Field + ", ?) > 0", []any{pred.Substring}, nil
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

func checkIdent(name string) error {
	if !queryir.ValidIdent(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func toParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case nil:
		return nil, fmt.Errorf("nil value (NULL comparisons are not supported)")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
