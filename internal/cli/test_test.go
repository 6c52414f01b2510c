package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

const passingScenario = `name: store
description: "an int stored through a parameter"
program: programs/store.cue
run_id: "cli-store"
assertions:
  - type: value_type
    value: "callee#arg0"
    upper: "int32_t *"
`

const failingScenario = `name: wrong
description: "asserts the wrong type"
program: programs/store.cue
assertions:
  - type: value_type
    value: "callee#arg0"
    upper: "char *"
`

const errorScenario = `name: dup
description: "duplicate functions are rejected"
source: |
  functions: [{name: "f"}, {name: "f"}]
expect_error: INVALID_PROGRAM
`

// scenarioDir lays out a scenarios directory with the store program.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "programs/store.cue", testutil.StoreThroughParamCUE)
	for name, content := range scenarios {
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"store.yaml": passingScenario,
		"dup.yml":    errorScenario,
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS store")
	assert.Contains(t, out, "PASS dup")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandFailingJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"store.yaml": passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result TestResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	for _, s := range result.Scenarios {
		if s.Name == "wrong" {
			assert.False(t, s.Pass)
			assert.NotEmpty(t, s.Errors)
		}
	}
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"store.yaml": passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--filter", "st*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"broken.yaml": "name: broken\nassertion: []\n",
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"store.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "store.golden")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS store (golden updated)")
	require.FileExists(t, golden)

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"cli-store"`)

	// A second run matches the snapshot it just wrote.
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS store")

	// Golden files themselves are never picked up as scenarios.
	assert.Contains(t, out, "1 total")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"store.yaml": passingScenario})
	writeFile(t, dir, "golden/store.golden", `{"scenario_name":"store"}`)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL store")
	assert.Contains(t, out, "do not match golden file")
}

func TestFindScenarioFiles_BadPattern(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"store.yaml": passingScenario})
	_, err := findScenarioFiles(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "golden", "b.golden"), goldenFilePath(filepath.Join("a", "b.yaml")))
}
