package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

func TestAnalysisError_Error(t *testing.T) {
	err := &AnalysisError{
		Code:    ErrCodeInvariant,
		Message: "graph invariant violated",
		SCC:     "f,g",
		Phase:   "top-down",
		Err:     errors.New("boom"),
	}
	assert.Equal(t, "INVARIANT: graph invariant violated (phase=top-down, scc=f,g): boom", err.Error())

	err = &AnalysisError{Code: ErrCodeOverride, Message: "read x.json", SCC: "f"}
	assert.Equal(t, "BAD_OVERRIDE: read x.json (scc=f)", err.Error())
}

func TestWrapPhase_Invariant(t *testing.T) {
	inv := &graph.InvariantError{Code: graph.ErrCodeSymmetryBroken, Message: "edge without mirror"}
	err := wrapPhase(inv, "f", "bottom-up")

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeInvariant, ae.Code)
	assert.Equal(t, "f", ae.SCC)
	assert.Equal(t, "bottom-up", ae.Phase)
	assert.True(t, IsInvariantError(err))
	assert.True(t, graph.HasCode(err, graph.ErrCodeSymmetryBroken), "the graph error stays reachable")
	assert.False(t, IsInputError(err))
}

func TestWrapPhase_Budget(t *testing.T) {
	err := wrapPhase(fmt.Errorf("saturate: %w", &graph.BudgetExceededError{Graph: "f", Rounds: 4, MaxRounds: 3}), "f", "top-down")
	assert.True(t, IsBudgetError(err))
	assert.False(t, IsInvariantError(err))
}

func TestWrapPhase_KeepsAnalysisError(t *testing.T) {
	orig := &AnalysisError{Code: ErrCodeBadCell, Message: "cell of x", Phase: "bottom-up"}
	err := wrapPhase(fmt.Errorf("build: %w", orig), "g", "top-down")

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Same(t, orig, ae)
	assert.Equal(t, "g", ae.SCC, "missing scc is filled in")
	assert.Equal(t, "bottom-up", ae.Phase, "existing phase is kept")
	assert.True(t, IsInputError(err))
}

func TestWrapPhase_Nil(t *testing.T) {
	assert.NoError(t, wrapPhase(nil, "f", "global"))
}

func TestIsInputError(t *testing.T) {
	for _, code := range []AnalysisErrorCode{ErrCodeBadConstraint, ErrCodeBadCell, ErrCodeOverride, ErrCodeInvalidProgram} {
		assert.True(t, IsInputError(&AnalysisError{Code: code}), code)
	}
	assert.False(t, IsInputError(&AnalysisError{Code: ErrCodeBudget}))
	assert.False(t, IsInputError(errors.New("plain")))
}
