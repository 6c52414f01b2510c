package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end type recovery scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path of the input program (.cue or .json).
	// Relative paths are resolved against the scenario file location.
	Program string `yaml:"program,omitempty"`

	// Source is an inline program in CUE or JSON. Exactly one of Program
	// and Source is set.
	Source string `yaml:"source,omitempty"`

	// SummaryOverride and SignatureOverride are override file paths,
	// resolved like Program.
	SummaryOverride   string `yaml:"summary_override,omitempty"`
	SignatureOverride string `yaml:"signature_override,omitempty"`

	// Config is overlaid onto the default engine configuration. It uses
	// the keys of the engine config file.
	Config yaml.Node `yaml:"config,omitempty"`

	// RunID is the fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// ExpectError is the analysis error code the run must fail with.
	// Assertions are not evaluated for a run expected to fail.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the recovered types.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates one aspect of the result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value_type": upper (and optionally lower, size) of a value match exactly
	// - "value_contains": upper type of a value contains a substring
	// - "declaration_contains": some declaration contains a substring
	// - "unhandled_call": a call is unhandled, optionally with a reason
	// - "unhandled_count": exactly Count calls are unhandled
	// - "memory_type": the memory type contains a substring
	Type string `yaml:"type"`

	// Value is the value reference (used by value_type, value_contains).
	Value string `yaml:"value,omitempty"`

	Upper string `yaml:"upper,omitempty"`
	Lower string `yaml:"lower,omitempty"`
	Size  uint32 `yaml:"size,omitempty"`

	// Contains is the expected substring (value_contains,
	// declaration_contains, memory_type).
	Contains string `yaml:"contains,omitempty"`

	// Call and Reason identify an unhandled call (unhandled_call).
	Call   string `yaml:"call,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Count is the expected number of unhandled calls (unhandled_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertValueType           = "value_type"
	AssertValueContains       = "value_contains"
	AssertDeclarationContains = "declaration_contains"
	AssertUnhandledCall       = "unhandled_call"
	AssertUnhandledCount      = "unhandled_count"
	AssertMemoryType          = "memory_type"
)

// LoadScenario reads and parses a scenario YAML file. Relative paths in
// the scenario are resolved against the directory of the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving program and override paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to base path BEFORE validation
	for _, p := range []*string{&scenario.Program, &scenario.SummaryOverride, &scenario.SignatureOverride} {
		if *p != "" && !filepath.IsAbs(*p) && basePath != "" {
			*p = filepath.Join(basePath, *p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Program == "" && s.Source == "":
		return fmt.Errorf("program or source is required")
	case s.Program != "" && s.Source != "":
		return fmt.Errorf("program and source are mutually exclusive")
	}

	for _, p := range []string{s.Program, s.SummaryOverride, s.SignatureOverride} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValueType:
		if a.Value == "" || a.Upper == "" {
			return fmt.Errorf("assertions[%d]: value and upper are required for value_type", index)
		}
	case AssertValueContains:
		if a.Value == "" || a.Contains == "" {
			return fmt.Errorf("assertions[%d]: value and contains are required for value_contains", index)
		}
	case AssertDeclarationContains, AssertMemoryType:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for %s", index, a.Type)
		}
	case AssertUnhandledCall:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for unhandled_call", index)
		}
	case AssertUnhandledCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for unhandled_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
