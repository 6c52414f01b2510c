package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/engine"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/store"
	"github.com/NotDec/NotDec-sub000/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a fixed run id against an isolated store.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	runID  string
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load the program and build the engine configuration
// 3. Run the engine
// 4. Check the recorded run against the returned result
// 5. Evaluate assertions and return the result with pass/fail and errors
//
// An error is returned when the scenario cannot be executed at all; a run
// that fails unexpectedly is reported as a failed result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	prog, err := loadProgram(scenario)
	if err != nil {
		return nil, err
	}
	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, err
	}

	runID := testutil.NewFixedRunIDGenerator(scenario.RunID)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store: st,
		engine: engine.New(
			engine.WithStore(st),
			engine.WithRunIDGenerator(runID),
			engine.WithLogger(logger),
			engine.WithConfig(cfg),
		),
		runID:  runID.Generate(),
		logger: logger,
	}
	return h.execute(ctx, scenario, prog), nil
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario, prog *ir.Program) *Result {
	result := NewResult()

	res, err := h.engine.Run(ctx, prog)
	if err != nil {
		var ae *engine.AnalysisError
		if errors.As(err, &ae) {
			result.ErrorCode = string(ae.Code)
		}
		switch {
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("run failed: %v", err))
		case result.ErrorCode != scenario.ExpectError:
			result.AddError(fmt.Sprintf("run failed with %q, expected %q: %v", result.ErrorCode, scenario.ExpectError, err))
		}
		return result
	}
	if scenario.ExpectError != "" {
		result.AddError(fmt.Sprintf("run succeeded, expected error %q", scenario.ExpectError))
	}
	result.Types = res

	if err := h.checkRecorded(ctx, res); err != nil {
		result.AddError(err.Error())
	}
	for _, msg := range EvaluateAssertions(res, scenario.Assertions) {
		result.AddError(msg)
	}
	return result
}

// checkRecorded verifies the store holds exactly the returned result.
func (h *Harness) checkRecorded(ctx context.Context, res *ir.Result) error {
	stored, err := h.store.ReadRun(ctx, h.runID)
	if err != nil {
		return fmt.Errorf("run %s not recorded: %w", h.runID, err)
	}
	if diff := cmp.Diff(res, stored, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("recorded run differs (-returned +stored):\n%s", diff)
	}
	return nil
}

// loadProgram compiles the program file or inline source of a scenario.
func loadProgram(s *Scenario) (*ir.Program, error) {
	if s.Source != "" {
		p, err := compiler.CompileProgramBytes([]byte(s.Source), s.Name+".cue")
		if err != nil {
			return nil, fmt.Errorf("failed to compile inline program: %w", err)
		}
		return p, nil
	}
	p, err := compiler.LoadProgram(s.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return p, nil
}

// scenarioConfig overlays the scenario's config and overrides onto the
// default engine configuration. The environment is not consulted.
func scenarioConfig(s *Scenario) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if !s.Config.IsZero() {
		if err := s.Config.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("invalid scenario config: %w", err)
		}
	}
	if s.SummaryOverride != "" {
		cfg.SummaryOverride = s.SummaryOverride
	}
	if s.SignatureOverride != "" {
		cfg.SignatureOverride = s.SignatureOverride
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid scenario config: %w", err)
	}
	return cfg, nil
}
