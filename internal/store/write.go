package store

import (
	"context"
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// SaveSummary stores the summary of scc under its content key.
// Uses ON CONFLICT(key) DO NOTHING for idempotency - the first summary
// stored under a key is kept.
func (s *Store) SaveSummary(ctx context.Context, key, scc string, sum *ir.Summary) error {
	if sum == nil {
		return fmt.Errorf("save summary %s: nil summary", scc)
	}
	consJSON, err := marshalConstraints(sum.Constraints)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	pniJSON, err := marshalPNIMap(sum.PNIMap)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save summary: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO summaries (key, scc, constraints, pni_map, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, scc, consJSON, pniJSON, seq)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save summary: commit: %w", err)
	}
	return nil
}

// RecordRun stores a finished run with its value types and unhandled
// calls. The whole run is written in one transaction.
//
// A run id that already exists is an error; run ids are unique per run.
func (s *Store) RecordRun(ctx context.Context, res *ir.Result) error {
	if res == nil || res.RunID == "" {
		return fmt.Errorf("record run: missing run id")
	}
	declJSON, err := marshalDeclarations(res.Declarations)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	diagJSON, err := marshalDiagnostics(res.Diagnostics)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, program_hash, memory, declarations, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?)
	`, res.RunID, seq, res.ProgramHash, res.Memory, declJSON, diagJSON)
	if err != nil {
		return fmt.Errorf("record run %s: %w", res.RunID, err)
	}

	for _, v := range res.Values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO value_types (run_id, value, upper, lower, size)
			VALUES (?, ?, ?, ?, ?)
		`, res.RunID, v.Value, v.Upper, v.Lower, v.Size)
		if err != nil {
			return fmt.Errorf("record run %s: value %s: %w", res.RunID, v.Value, err)
		}
	}
	for _, u := range res.Unhandled {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO unhandled_calls (run_id, call, caller, callee, reason)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, call) DO NOTHING
		`, res.RunID, u.Call, u.Caller, u.Callee, u.Reason)
		if err != nil {
			return fmt.Errorf("record run %s: call %s: %w", res.RunID, u.Call, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// DeleteRun removes a run and, through ON DELETE CASCADE, its value types
// and unhandled calls. Deleting an unknown run is not an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return nil
}

// PruneSummaries drops every cached summary. It returns the number of
// rows removed.
func (s *Store) PruneSummaries(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM summaries`)
	if err != nil {
		return 0, fmt.Errorf("prune summaries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune summaries: %w", err)
	}
	return n, nil
}
