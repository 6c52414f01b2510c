package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// TypeSnapshot captures everything a scenario run recovered.
// It serializes to canonical JSON for deterministic comparison.
type TypeSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	RunID        string            `json:"run_id,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	Values       []ir.ValueType    `json:"values,omitempty"`
	Memory       string            `json:"memory,omitempty"`
	Declarations []string          `json:"declarations,omitempty"`
	Unhandled    []ir.UnhandledCall `json:"unhandled,omitempty"`
	Diagnostics  []ir.Diagnostic   `json:"diagnostics,omitempty"`
}

// NewSnapshot builds the snapshot of a scenario result.
func NewSnapshot(name string, result *Result) TypeSnapshot {
	s := TypeSnapshot{ScenarioName: name, ErrorCode: result.ErrorCode}
	if r := result.Types; r != nil {
		s.RunID = r.RunID
		s.Values = r.Values
		s.Memory = r.Memory
		s.Declarations = r.Declarations
		s.Unhandled = r.Unhandled
		s.Diagnostics = r.Diagnostics
	}
	return s
}

// Marshal returns the canonical JSON of the snapshot.
func (s TypeSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// RunWithGolden executes a scenario and compares its type snapshot
// against a golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, "testdata/golden", scenario.Name, result)
}

// AssertGolden compares the given result against a golden file in dir.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// UpdateGolden writes the snapshot of result as the golden file in dir.
func UpdateGolden(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	return g.Update(t, scenarioName, data)
}
