package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyJoin(filter Predicate) Join {
	return Join{
		Left: Select{
			From:     "runs",
			Bindings: []Binding{{Field: "runs.id", As: "run_id"}, {Field: "seq"}},
		},
		Right: Select{
			From:     "value_types",
			Bindings: []Binding{{Field: "value"}, {Field: "upper"}},
		},
		On:     FieldEquals{Left: "runs.id", Right: "value_types.run_id"},
		Filter: filter,
	}
}

func TestValidate_ValidSelect(t *testing.T) {
	result := Validate(Select{
		From:     "value_types",
		Filter:   Equals{Field: "value", Value: "main#ret"},
		Bindings: []Binding{{Field: "upper", As: "type"}},
	}, HistorySchema)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_ValidJoin(t *testing.T) {
	result := Validate(historyJoin(And{Predicates: []Predicate{
		Equals{Field: "program_hash", Value: "abc"},
		Contains{Field: "upper", Substring: "*"},
		Equals{Field: "value_types.size", Value: int64(32)},
	}}), HistorySchema)

	assert.True(t, result.Valid, result.Problems)
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"unknown table", Select{From: "summaries", Bindings: []Binding{{Field: "key"}}}, `unknown table "summaries"`},
		{"unknown field", Select{From: "runs", Bindings: []Binding{{Field: "memory"}}}, `unknown field "memory"`},
		{"wildcard", Select{From: "runs", Bindings: []Binding{{Field: "*"}}}, "wildcard"},
		{"invalid field", Select{
			From:     "runs",
			Bindings: []Binding{{Field: "id"}},
			Filter:   Equals{Field: "id OR 1", Value: "x"},
		}, "invalid field"},
		{"float value", Select{
			From:     "runs",
			Bindings: []Binding{{Field: "id"}},
			Filter:   Equals{Field: "seq", Value: 1.5},
		}, "unsupported value type float64"},
		{"duplicate binding", Select{
			From:     "runs",
			Bindings: []Binding{{Field: "id"}, {Field: "seq", As: "id"}},
		}, `duplicate binding "id"`},
		{"bad alias", Select{
			From:     "runs",
			Bindings: []Binding{{Field: "id", As: "runs.x"}},
		}, "invalid binding name"},
		{"foreign table", Select{
			From:     "runs",
			Bindings: []Binding{{Field: "value_types.value"}},
		}, "not part of the query"},
		{"ambiguous", Join{
			Left:  Select{From: "value_types", Bindings: []Binding{{Field: "value"}}},
			Right: Select{From: "unhandled_calls", Bindings: []Binding{{Field: "call"}}},
			On:    FieldEquals{Left: "run_id", Right: "unhandled_calls.run_id"},
		}, `ambiguous field "run_id"`},
		{"no on", Join{
			Left:  Select{From: "runs", Bindings: []Binding{{Field: "id"}}},
			Right: Select{From: "value_types", Bindings: []Binding{{Field: "value"}}},
		}, "no ON condition"},
		{"self join", Join{
			Left:  Select{From: "runs", Bindings: []Binding{{Field: "id"}}},
			Right: Select{From: "runs", Bindings: []Binding{{Field: "seq"}}},
			On:    FieldEquals{Left: "runs.id", Right: "runs.id"},
		}, "self join"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query, HistorySchema)
			require.False(t, result.Valid)
			assert.ErrorContains(t, result.Err(), tt.want)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	result := Validate(historyJoin(And{Predicates: []Predicate{
		Equals{Field: "nope", Value: "x"},
		Contains{Field: "also_nope", Substring: "y"},
	}}), HistorySchema)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{`unknown field "nope"`, `unknown field "also_nope"`}, result.Problems)
}

func TestValidIdent(t *testing.T) {
	assert.True(t, ValidIdent("value"))
	assert.True(t, ValidIdent("value_types.run_id"))
	assert.False(t, ValidIdent(""))
	assert.False(t, ValidIdent("Value"))
	assert.False(t, ValidIdent("a.b.c"))
	assert.False(t, ValidIdent("1x"))
	assert.False(t, ValidIdent("x;"))
}
