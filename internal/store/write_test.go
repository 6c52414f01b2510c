package store

import (
	"context"
	"testing"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

func TestSaveSummary_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveSummary(ctx, "key1", "callee", createTestSummary()); err != nil {
		t.Fatalf("SaveSummary() failed: %v", err)
	}

	var scc, constraints, pniMap string
	var seq int64
	err := s.db.QueryRow(`
		SELECT scc, constraints, pni_map, seq FROM summaries WHERE key = 'key1'
	`).Scan(&scc, &constraints, &pniMap, &seq)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if scc != "callee" {
		t.Errorf("scc = %q, want %q", scc, "callee")
	}
	if constraints != `["callee.in_0.store32 <= #int"]` {
		t.Errorf("constraints = %s", constraints)
	}
	if pniMap != `{"ptr 32 callee.in_0":"callee.in_0"}` {
		t.Errorf("pni_map = %s", pniMap)
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
}

func TestSaveSummary_FirstWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveSummary(ctx, "key1", "callee", createTestSummary()); err != nil {
		t.Fatalf("first SaveSummary() failed: %v", err)
	}
	other := &ir.Summary{Constraints: []string{"callee.out <= #int"}}
	if err := s.SaveSummary(ctx, "key1", "callee", other); err != nil {
		t.Fatalf("second SaveSummary() should be a no-op, got: %v", err)
	}

	sum, ok, err := s.LoadSummary(ctx, "key1")
	if err != nil || !ok {
		t.Fatalf("LoadSummary() = %v, %v", ok, err)
	}
	if len(sum.Constraints) != 1 || sum.Constraints[0] != "callee.in_0.store32 <= #int" {
		t.Errorf("constraints = %v, want the first summary", sum.Constraints)
	}
}

func TestSaveSummary_Nil(t *testing.T) {
	s := createTestStore(t)
	if err := s.SaveSummary(context.Background(), "key1", "f", nil); err == nil {
		t.Error("expected error for nil summary, got nil")
	}
}

func TestSaveSummary_EmptySummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveSummary(ctx, "key1", "f", &ir.Summary{}); err != nil {
		t.Fatalf("SaveSummary() failed: %v", err)
	}
	var constraints string
	if err := s.db.QueryRow(`SELECT constraints FROM summaries`).Scan(&constraints); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if constraints != "[]" {
		t.Errorf("constraints = %s, want []", constraints)
	}
}

func TestRecordRun_Basic(t *testing.T) {
	s := createTestStore(t)
	mustRecordRun(t, s, createTestResult("run-1", "hash1"))

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM value_types WHERE run_id = 'run-1'`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("value_types count = %d, want 2", count)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM unhandled_calls WHERE run_id = 'run-1'`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("unhandled_calls count = %d, want 1", count)
	}
}

func TestRecordRun_SeqSharedWithSummaries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveSummary(ctx, "key1", "callee", createTestSummary()); err != nil {
		t.Fatalf("SaveSummary() failed: %v", err)
	}
	mustRecordRun(t, s, createTestResult("run-1", "hash1"))
	mustRecordRun(t, s, createTestResult("run-2", "hash1"))

	runs, err := s.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Seq != 2 || runs[1].Seq != 3 {
		t.Errorf("seqs = %d, %d, want 2, 3", runs[0].Seq, runs[1].Seq)
	}
}

func TestRecordRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	mustRecordRun(t, s, createTestResult("run-1", "hash1"))

	err := s.RecordRun(context.Background(), createTestResult("run-1", "hash1"))
	if err == nil {
		t.Error("expected error for duplicate run id, got nil")
	}
}

func TestRecordRun_MissingID(t *testing.T) {
	s := createTestStore(t)
	if err := s.RecordRun(context.Background(), createTestResult("", "hash1")); err == nil {
		t.Error("expected error for missing run id, got nil")
	}
	if err := s.RecordRun(context.Background(), nil); err == nil {
		t.Error("expected error for nil result, got nil")
	}
}

func TestRecordRun_RollsBackOnFailure(t *testing.T) {
	s := createTestStore(t)
	res := createTestResult("run-1", "hash1")
	// Same value twice violates the primary key of value_types
	res.Values = append(res.Values, res.Values[0])

	if err := s.RecordRun(context.Background(), res); err == nil {
		t.Fatal("expected error for duplicate value, got nil")
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("runs count = %d after failed record, want 0", count)
	}
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustRecordRun(t, s, createTestResult("run-1", "hash1"))

	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun() failed: %v", err)
	}
	for _, table := range []string{"runs", "value_types", "unhandled_calls"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("query %s failed: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s count = %d after delete, want 0", table, count)
		}
	}

	// Unknown run is not an error
	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Errorf("DeleteRun() of unknown run failed: %v", err)
	}
}

func TestPruneSummaries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		if err := s.SaveSummary(ctx, key, "f", createTestSummary()); err != nil {
			t.Fatalf("SaveSummary(%s) failed: %v", key, err)
		}
	}

	n, err := s.PruneSummaries(ctx)
	if err != nil {
		t.Fatalf("PruneSummaries() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	count, err := s.CountSummaries(ctx)
	if err != nil {
		t.Fatalf("CountSummaries() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountSummaries() = %d, want 0", count)
	}
}
