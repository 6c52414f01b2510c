package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinding_Name(t *testing.T) {
	assert.Equal(t, "upper", Binding{Field: "upper"}.Name())
	assert.Equal(t, "type", Binding{Field: "upper", As: "type"}.Name())
	assert.Equal(t, "runs.id", Binding{Field: "runs.id"}.Name())
}

func TestQuery_SealedTypeSwitch(t *testing.T) {
	queries := []Query{
		Select{From: "runs"},
		Join{Left: Select{From: "runs"}, Right: Select{From: "value_types"}},
	}
	var selects, joins int
	for _, q := range queries {
		switch q.(type) {
		case Select:
			selects++
		case Join:
			joins++
		}
	}
	assert.Equal(t, 1, selects)
	assert.Equal(t, 1, joins)
}

func TestPredicate_SealedTypeSwitch(t *testing.T) {
	preds := []Predicate{
		Equals{Field: "value", Value: "x"},
		FieldEquals{Left: "runs.id", Right: "value_types.run_id"},
		Contains{Field: "upper", Substring: "*"},
		And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Equals, FieldEquals, Contains, And:
		default:
			t.Fatalf("unexpected predicate %T", p)
		}
	}
}
