package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/store"
)

func TestSummaryRequiresDB(t *testing.T) {
	_, err := execute(t, NewSummaryCommand(&RootOptions{Format: "text"}), "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestSummaryMissingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")

	_, err := execute(t, NewSummaryCommand(&RootOptions{Format: "text"}), "count", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.NoFileExists(t, db, "read-only commands do not create databases")
}

func TestSummaryExportAndReuse(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "notdec.db")
	prog := storeProgram(t, dir)
	inferInto(t, db, "run-1", prog)

	out, err := execute(t, NewSummaryCommand(&RootOptions{Format: "text"}), "count", "--db", db)
	require.NoError(t, err)
	assert.NotEqual(t, "0", strings.TrimSpace(out))

	overrides := filepath.Join(dir, "summaries.json")
	out, err = execute(t, NewSummaryCommand(&RootOptions{Format: "text"}), "export", "--db", db, "-o", overrides)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS Exported")

	data, err := os.ReadFile(overrides)
	require.NoError(t, err)
	var sums ir.SummaryFile
	require.NoError(t, json.Unmarshal(data, &sums))
	assert.Contains(t, sums, "callee")

	// The exported file is a valid summary override.
	cmd := testInferCommand("text", nil)
	out, err = execute(t, cmd, "--summary-override", overrides, prog)
	require.NoError(t, err)
	assert.Contains(t, out, "callee#arg0: ")
}

func TestSummaryExportStdout(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "notdec.db")
	inferInto(t, db, "run-1", storeProgram(t, dir))

	out, err := execute(t, NewSummaryCommand(&RootOptions{Format: "text"}), "export", "--db", db)
	require.NoError(t, err)

	var sums ir.SummaryFile
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Contains(t, sums, "callee")
}

func TestSummaryPrune(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "notdec.db")
	inferInto(t, db, "run-1", storeProgram(t, dir))

	out, err := execute(t, NewSummaryCommand(&RootOptions{Format: "json"}), "prune", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "ok", decodeResponse(t, out).Status)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.CountSummaries(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)

	runs, err := st.ListRuns(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, runs, 1, "runs survive a prune")
}
