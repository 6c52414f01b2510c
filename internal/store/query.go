package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/NotDec/NotDec-sub000/internal/queryir"
	"github.com/NotDec/NotDec-sub000/internal/querysql"
)

// ErrInvalidQuery is returned when a history filter names unknown fields or
// uses unsupported values.
var ErrInvalidQuery = errors.New("invalid query")

// ValueRecord is one recovered value type together with the run it
// belongs to.
type ValueRecord struct {
	RunID       string `json:"run_id"`
	Seq         int64  `json:"seq"`
	ProgramHash string `json:"program_hash"`
	Value       string `json:"value"`
	Upper       string `json:"upper"`
	Lower       string `json:"lower,omitempty"`
	Size        int    `json:"size"`
}

// CallRecord is one unhandled call together with the run it belongs to.
type CallRecord struct {
	RunID       string `json:"run_id"`
	Seq         int64  `json:"seq"`
	ProgramHash string `json:"program_hash"`
	Call        string `json:"call"`
	Caller      string `json:"caller"`
	Callee      string `json:"callee,omitempty"`
	Reason      string `json:"reason"`
}

// runColumns are the run header columns joined onto every history row.
var runColumns = []queryir.Binding{
	{Field: "runs.id", As: "run_id"},
	{Field: "seq"},
	{Field: "program_hash"},
}

// FindValues returns the value types of every run that satisfy filter,
// ordered by run seq then value. Filter fields may name columns of runs
// (id, seq, program_hash) and of value_types (value, upper, lower, size).
// A nil filter matches everything.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) FindValues(ctx context.Context, filter queryir.Predicate) ([]ValueRecord, error) {
	q := historyJoin("value_types", []queryir.Binding{
		{Field: "value"}, {Field: "upper"}, {Field: "lower"}, {Field: "size"},
	}, filter)

	out := []ValueRecord{}
	err := s.runQuery(ctx, q, func(rows *sql.Rows) error {
		var r ValueRecord
		if err := rows.Scan(&r.RunID, &r.Seq, &r.ProgramHash, &r.Value, &r.Upper, &r.Lower, &r.Size); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find values: %w", err)
	}
	return out, nil
}

// FindUnhandled returns the unhandled calls of every run that satisfy
// filter, ordered by run seq then call. Filter fields may name columns of
// runs and of unhandled_calls (call, caller, callee, reason).
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) FindUnhandled(ctx context.Context, filter queryir.Predicate) ([]CallRecord, error) {
	q := historyJoin("unhandled_calls", []queryir.Binding{
		{Field: "call"}, {Field: "caller"}, {Field: "callee"}, {Field: "reason"},
	}, filter)

	out := []CallRecord{}
	err := s.runQuery(ctx, q, func(rows *sql.Rows) error {
		var r CallRecord
		if err := rows.Scan(&r.RunID, &r.Seq, &r.ProgramHash, &r.Call, &r.Caller, &r.Callee, &r.Reason); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find unhandled calls: %w", err)
	}
	return out, nil
}

func historyJoin(table string, bindings []queryir.Binding, filter queryir.Predicate) queryir.Join {
	return queryir.Join{
		Left:   queryir.Select{From: "runs", Bindings: runColumns},
		Right:  queryir.Select{From: table, Bindings: bindings},
		On:     queryir.FieldEquals{Left: "runs.id", Right: table + ".run_id"},
		Filter: filter,
	}
}

// runQuery validates and compiles q, then calls scan for every row.
func (s *Store) runQuery(ctx context.Context, q queryir.Query, scan func(*sql.Rows) error) error {
	if res := queryir.Validate(q, queryir.HistorySchema); !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(res.Problems, "; "))
	}
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return fmt.Errorf("compile query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}
	return rows.Err()
}
