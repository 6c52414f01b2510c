package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/engine"
	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

// noEnv isolates commands from NOTDEC_* variables of the test process.
func noEnv(string) (string, bool) { return "", false }

// writeFile writes content to name inside dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// storeProgram writes the store-through-parameter program as CUE.
func storeProgram(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "store.cue", testutil.StoreThroughParamCUE)
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON CLI response.
func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// testInferCommand builds an infer command with deterministic run ids and
// no environment overlay.
func testInferCommand(format string, runIDs engine.RunIDGenerator) *cobra.Command {
	opts := &InferOptions{RootOptions: &RootOptions{Format: format}, RunIDs: runIDs}
	opts.LookupEnv = noEnv
	return newInferCommand(opts)
}

// inferInto analyses program with run id runID and records it in db.
func inferInto(t *testing.T, db, runID, program string) {
	t.Helper()
	_, err := execute(t, testInferCommand("text", testutil.NewFixedRunIDGenerator(runID)), "--db", db, program)
	require.NoError(t, err)
}
