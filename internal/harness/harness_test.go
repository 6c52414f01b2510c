package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_StoreThroughParam(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/store_through_param.yaml")

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Types)
	assert.Equal(t, "scenario-store", result.Types.RunID)
}

func TestRun_LoadAfterAdd(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/load_after_add.yaml")

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, testutil.DefaultRunID, result.Types.RunID)
}

func TestRun_WithoutCellHints(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/store_through_param_no_cells.yaml",
		"testdata/scenarios/load_after_add_no_cells.yaml",
	} {
		t.Run(path, func(t *testing.T) {
			result := loadAndRun(t, path)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestRun_ExpectedError(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/invalid_program.yaml")

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "INVALID_PROGRAM", result.ErrorCode)
	assert.Nil(t, result.Types)
}

func TestRun_UnexpectedError(t *testing.T) {
	s := &Scenario{
		Name:        "dup",
		Description: "duplicate functions",
		Source:      `functions: [{name: "f"}, {name: "f"}]`,
		Assertions:  []Assertion{{Type: AssertUnhandledCount}},
	}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "run failed")
}

func TestRun_WrongErrorCode(t *testing.T) {
	s := &Scenario{
		Name:        "dup",
		Description: "duplicate functions",
		Source:      `functions: [{name: "f"}, {name: "f"}]`,
		ExpectError: "BAD_OVERRIDE",
	}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected "BAD_OVERRIDE"`)
}

func TestRun_ErrorExpectedButSucceeded(t *testing.T) {
	s := &Scenario{
		Name:        "indirect",
		Description: "valid program",
		Source:      testutil.IndirectCallJSON,
		ExpectError: "INVALID_PROGRAM",
	}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "run succeeded")
}

func TestRun_FailedAssertions(t *testing.T) {
	s := &Scenario{
		Name:        "indirect",
		Description: "indirect call is unhandled",
		Source:      testutil.IndirectCallJSON,
		Assertions: []Assertion{
			{Type: AssertUnhandledCall, Call: "main/c1", Reason: "indirect call"},
			{Type: AssertUnhandledCount, Count: 0},
		},
	}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unhandled_count")
}

func TestRun_BadSource(t *testing.T) {
	s := &Scenario{Name: "bad", Description: "syntax", Source: `functions: [`}
	_, err := Run(context.Background(), s)
	assert.ErrorContains(t, err, "failed to compile inline program")
}

func TestRun_BadConfig(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: bad_config
description: "level out of range"
source: |
  functions: [{name: "f"}]
config:
  postprocess_level: 7
expect_error: X
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	assert.ErrorContains(t, err, "invalid scenario config")
}

func TestRun_Deterministic(t *testing.T) {
	first := loadAndRun(t, "testdata/scenarios/store_through_param.yaml")
	second := loadAndRun(t, "testdata/scenarios/store_through_param.yaml")

	a, err := NewSnapshot("store_through_param", first).Marshal()
	require.NoError(t, err)
	b, err := NewSnapshot("store_through_param", second).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
