package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/store"
	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

// twoRuns records the store program and then the indirect-call program.
func twoRuns(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "notdec.db")
	inferInto(t, db, "run-1", storeProgram(t, dir))
	inferInto(t, db, "run-2", writeFile(t, dir, "indirect.json", testutil.IndirectCallJSON))
	return db
}

func TestRunsList(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "json"}), "list", "--db", db)
	require.NoError(t, err)

	data, err := json.Marshal(decodeResponse(t, out).Data)
	require.NoError(t, err)
	var runs []store.RunInfo
	require.NoError(t, json.Unmarshal(data, &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, 1, runs[1].Unhandled)

	out, err = execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "list", "--db", db, "--program", runs[1].ProgramHash)
	require.NoError(t, err)
	assert.Contains(t, out, "run-2")
	assert.NotContains(t, out, "run-1")
}

func TestRunsShow(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "show", "--db", db, "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "(run run-1)")
	assert.Contains(t, out, "callee#arg0: int32_t *")

	out, err = execute(t, NewRunsCommand(&RootOptions{Format: "json"}), "show", "--db", db, "run-2")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "run-2", resp.RunID)
}

func TestRunsShowNotFound(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "json"}), "show", "--db", db, "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)
}

func TestRunsDiff(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "json"}), "diff", "--db", db, "run-1", "run-2")
	require.NoError(t, err)

	data, err := json.Marshal(decodeResponse(t, out).Data)
	require.NoError(t, err)
	var changes []RunChange
	require.NoError(t, json.Unmarshal(data, &changes))

	var removed []string
	for _, c := range changes {
		if c.Kind == store.ChangeRemoved.String() {
			removed = append(removed, c.Value)
		}
	}
	assert.Contains(t, removed, "callee#arg0")
}

func TestRunsDiffSameRun(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "diff", "--db", db, "run-1", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS No type changes")
}

func TestRunsDelete(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "delete", "--db", db, "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run run-1")

	_, err = execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "show", "--db", db, "run-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunsValues(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "values", "--db", db,
		"--where", "value == 'callee#arg0'")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "callee#arg0: ")
	assert.NotContains(t, out, "run-2")

	out, err = execute(t, NewRunsCommand(&RootOptions{Format: "json"}), "values", "--db", db,
		"--where", "id == 'run-2'")
	require.NoError(t, err)
	data, err := json.Marshal(decodeResponse(t, out).Data)
	require.NoError(t, err)
	var recs []store.ValueRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	require.NotEmpty(t, recs)
	for _, r := range recs {
		assert.Equal(t, "run-2", r.RunID)
	}

	out, err = execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "values", "--db", db,
		"--where", "value == 'nope'")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching values.")
}

func TestRunsCalls(t *testing.T) {
	db := twoRuns(t)

	out, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "calls", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-2")
	assert.NotContains(t, out, "run-1")
}

func TestRunsValues_BadFilter(t *testing.T) {
	db := twoRuns(t)

	_, err := execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "values", "--db", db,
		"--where", "value != 'x'")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad filter")

	_, err = execute(t, NewRunsCommand(&RootOptions{Format: "text"}), "values", "--db", db,
		"--where", "reason == 'x'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad filter")
	assert.Contains(t, err.Error(), `unknown field "reason"`)
}
