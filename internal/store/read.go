package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// RunInfo is the header of a recorded run.
type RunInfo struct {
	ID          string
	Seq         int64
	ProgramHash string
	Values      int
	Unhandled   int
}

// LoadSummary returns the summary stored under key. ok is false when no
// summary has that key.
func (s *Store) LoadSummary(ctx context.Context, key string) (*ir.Summary, bool, error) {
	var constraints, pniMap string
	err := s.db.QueryRowContext(ctx, `
		SELECT constraints, pni_map FROM summaries WHERE key = ?
	`, key).Scan(&constraints, &pniMap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load summary: %w", err)
	}
	sum, err := unmarshalSummary(constraints, pniMap)
	if err != nil {
		return nil, false, fmt.Errorf("load summary %s: %w", key, err)
	}
	return sum, true, nil
}

// ExportSummaries returns the newest summary of every SCC as a summary
// file, keyed by the SCC's function names. The result can be used as a
// summary override.
func (s *Store) ExportSummaries(ctx context.Context) (ir.SummaryFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scc, constraints, pni_map
		FROM summaries
		ORDER BY seq ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := make(ir.SummaryFile)
	for rows.Next() {
		var scc, constraints, pniMap string
		if err := rows.Scan(&scc, &constraints, &pniMap); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum, err := unmarshalSummary(constraints, pniMap)
		if err != nil {
			return nil, fmt.Errorf("summary of %s: %w", scc, err)
		}
		// Later rows win: the newest summary of an SCC is exported.
		out[scc] = *sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

// CountSummaries returns the number of cached summaries.
func (s *Store) CountSummaries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count summaries: %w", err)
	}
	return n, nil
}

// ReadRun returns a recorded run as a result.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (*ir.Result, error) {
	res := &ir.Result{RunID: id}
	var declJSON, diagJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT program_hash, memory, declarations, diagnostics
		FROM runs
		WHERE id = ?
	`, id).Scan(&res.ProgramHash, &res.Memory, &declJSON, &diagJSON)
	if err != nil {
		return nil, err
	}
	if res.Declarations, err = unmarshalDeclarations(declJSON); err != nil {
		return nil, err
	}
	if res.Diagnostics, err = unmarshalDiagnostics(diagJSON); err != nil {
		return nil, err
	}
	if res.Values, err = s.readValueTypes(ctx, id); err != nil {
		return nil, err
	}
	if res.Unhandled, err = s.readUnhandled(ctx, id); err != nil {
		return nil, err
	}
	return res, nil
}

// readValueTypes returns the value types of a run ordered by value.
func (s *Store) readValueTypes(ctx context.Context, runID string) ([]ir.ValueType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value, upper, lower, size
		FROM value_types
		WHERE run_id = ?
		ORDER BY value COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query value types: %w", err)
	}
	defer rows.Close()

	var out []ir.ValueType
	for rows.Next() {
		var v ir.ValueType
		if err := rows.Scan(&v.Value, &v.Upper, &v.Lower, &v.Size); err != nil {
			return nil, fmt.Errorf("scan value type: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate value types: %w", err)
	}
	return out, nil
}

func (s *Store) readUnhandled(ctx context.Context, runID string) ([]ir.UnhandledCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call, caller, callee, reason
		FROM unhandled_calls
		WHERE run_id = ?
		ORDER BY call COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query unhandled calls: %w", err)
	}
	defer rows.Close()

	var out []ir.UnhandledCall
	for rows.Next() {
		var u ir.UnhandledCall
		if err := rows.Scan(&u.Call, &u.Caller, &u.Callee, &u.Reason); err != nil {
			return nil, fmt.Errorf("scan unhandled call: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unhandled calls: %w", err)
	}
	return out, nil
}

// ListRuns returns the header of every run, oldest first. A non-empty
// programHash restricts the list to runs of that program.
//
// Returns an empty slice (not nil) if no run matches.
func (s *Store) ListRuns(ctx context.Context, programHash string) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.seq, r.program_hash,
			(SELECT COUNT(*) FROM value_types v WHERE v.run_id = r.id),
			(SELECT COUNT(*) FROM unhandled_calls u WHERE u.run_id = r.id)
		FROM runs r
		WHERE ? = '' OR r.program_hash = ?
		ORDER BY r.seq ASC
	`, programHash, programHash)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.ID, &r.Seq, &r.ProgramHash, &r.Values, &r.Unhandled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the newest run of the program, or sql.ErrNoRows.
func (s *Store) LatestRun(ctx context.Context, programHash string) (*ir.Result, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE program_hash = ?
		ORDER BY seq DESC
		LIMIT 1
	`, programHash).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.ReadRun(ctx, id)
}
