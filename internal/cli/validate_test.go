package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

const recursiveCUE = `
functions: [{
	name: "f"
	params: 1
	calls: [{id: "c0", callee: "f", args: ["x"]}]
}]
`

func validationResult(t *testing.T, resp CLIResponse) ValidationResult {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result ValidationResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestValidateValidProgram(t *testing.T) {
	path := storeProgram(t, t.TempDir())

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS All programs valid (1 file(s))")
}

func TestValidateValidProgramJSON(t *testing.T) {
	dir := t.TempDir()
	storeProgram(t, dir)
	writeFile(t, dir, "indirect.json", testutil.IndirectCallJSON)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	result := validationResult(t, resp)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Files)
}

func TestValidateRecursionWarning(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rec.cue", recursiveCUE)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "info: self-recursive function: f")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "no such file or directory")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateDuplicateFunction(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dup.cue", `functions: [{name: "f"}, {name: "f"}]`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL Validation failed")
	assert.Contains(t, out, compiler.ErrDuplicateFunction)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "a_syntax.cue", "functions: [\n")
	dup := writeFile(t, dir, "b_dup.cue", `functions: [{name: "f"}, {name: "f"}]`)
	storeProgram(t, dir)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCompileFailed, resp.Error.Code)

	result := validationResult(t, resp)
	assert.False(t, result.Valid)
	assert.Equal(t, 3, result.Files)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, bad, result.Errors[0].Path)
	assert.Equal(t, "load", result.Errors[0].Field)
	assert.Equal(t, dup, result.Errors[1].Path)
	assert.Equal(t, compiler.ErrDuplicateFunction, result.Errors[1].Code)
}

func TestValidateUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prog.yaml", "functions: []")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, filepath.Base(path))
	assert.Contains(t, out, "unsupported program file extension")
}
