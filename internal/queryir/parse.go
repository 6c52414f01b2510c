package queryir

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFilter parses a filter expression into a predicate.
//
// Supported forms, joined with AND (case insensitive):
//
//	field == 'literal'     string equality ("=" is accepted too)
//	field == 42            integer equality
//	field ~ 'text'         substring match
//	field == other.field   field equality
//
// Strings may use single or double quotes. A bare word that is not a
// number and contains no dot is taken as a string literal. An empty filter
// returns a nil predicate.
func ParseFilter(filter string) (Predicate, error) {
	parts, err := splitByAnd(filter)
	if err != nil {
		return nil, err
	}
	predicates := make([]Predicate, 0, len(parts))
	for _, part := range parts {
		pred, err := parseComparison(part)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}
	switch len(predicates) {
	case 0:
		return nil, nil
	case 1:
		return predicates[0], nil
	}
	return And{Predicates: predicates}, nil
}

// splitByAnd splits on AND keywords outside quotes.
func splitByAnd(filter string) ([]string, error) {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(filter); i++ {
		c := filter[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case isSpace(c) && i+4 < len(filter) && strings.EqualFold(filter[i+1:i+4], "and") && isSpace(filter[i+4]):
			parts = appendPart(parts, filter[start:i])
			start = i + 5
			i += 4
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string in filter: %s", filter)
	}
	parts = appendPart(parts, filter[start:])
	if len(parts) == 1 && parts[0] == "" {
		return nil, nil
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty clause in filter: %s", filter)
		}
	}
	return parts, nil
}

func appendPart(parts []string, s string) []string {
	return append(parts, strings.TrimSpace(s))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

// parseComparison parses "field op value".
func parseComparison(expr string) (Predicate, error) {
	field, op, value, err := splitComparison(expr)
	if err != nil {
		return nil, err
	}
	if field == "" {
		return nil, fmt.Errorf("missing field in: %s", expr)
	}
	if value == "" {
		return nil, fmt.Errorf("missing value in: %s", expr)
	}

	if lit, ok := unquote(value); ok {
		if op == "~" {
			return Contains{Field: field, Substring: lit}, nil
		}
		return Equals{Field: field, Value: lit}, nil
	}
	if op == "~" {
		return nil, fmt.Errorf("~ needs a quoted string in: %s", expr)
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return Equals{Field: field, Value: n}, nil
	}
	if strings.Contains(value, ".") {
		return FieldEquals{Left: field, Right: value}, nil
	}
	return Equals{Field: field, Value: value}, nil
}

func splitComparison(expr string) (field, op, value string, err error) {
	expr = strings.TrimSpace(expr)
	if i := strings.Index(expr, "!="); i >= 0 && !quotedAt(expr, i) {
		return "", "", "", fmt.Errorf("unsupported operator != in: %s", expr)
	}
	for i := 0; i < len(expr); i++ {
		if expr[i] == '\'' || expr[i] == '"' {
			break
		}
		switch {
		case strings.HasPrefix(expr[i:], "=="):
			return strings.TrimSpace(expr[:i]), "==", strings.TrimSpace(expr[i+2:]), nil
		case expr[i] == '=':
			return strings.TrimSpace(expr[:i]), "==", strings.TrimSpace(expr[i+1:]), nil
		case expr[i] == '~':
			return strings.TrimSpace(expr[:i]), "~", strings.TrimSpace(expr[i+1:]), nil
		}
	}
	return "", "", "", fmt.Errorf("unsupported expression (no == or ~ found): %s", expr)
}

// quotedAt reports whether expr[i] sits inside a quoted string.
func quotedAt(expr string, i int) bool {
	var quote byte
	for j := 0; j < i; j++ {
		switch {
		case quote != 0 && expr[j] == quote:
			quote = 0
		case quote == 0 && (expr[j] == '\'' || expr[j] == '"'):
			quote = expr[j]
		}
	}
	return quote != 0
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1], true
	}
	return "", false
}
