package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSummary creates a summary of a callee storing through its
// first argument.
func createTestSummary() *ir.Summary {
	return &ir.Summary{
		Constraints: []string{"callee.in_0.store32 <= #int"},
		PNIMap: map[string]string{
			"ptr 32 callee.in_0": "callee.in_0",
		},
	}
}

// createTestResult creates a run result with two values and one
// unhandled call.
func createTestResult(runID, programHash string) *ir.Result {
	return &ir.Result{
		RunID:       runID,
		ProgramHash: programHash,
		Values: []ir.ValueType{
			{Value: "callee#arg0", Upper: "int32_t *", Size: 4},
			{Value: "callee#ret", Upper: "int32_t", Lower: "int32_t", Size: 4},
		},
		Memory:       "struct s_1",
		Declarations: []string{"struct s_1 {\n  int32_t field_1; // at offset 0\n};"},
		Unhandled: []ir.UnhandledCall{
			{Caller: "main", Call: "main/c1", Reason: "indirect call"},
		},
		Diagnostics: []ir.Diagnostic{
			{Severity: ir.SeverityWarning, Function: "main", Message: "indirect call not resolved"},
		},
	}
}

// mustRecordRun records res or fails the test.
func mustRecordRun(t *testing.T, s *Store, res *ir.Result) {
	t.Helper()
	if err := s.RecordRun(context.Background(), res); err != nil {
		t.Fatalf("RecordRun(%s) failed: %v", res.RunID, err)
	}
}
