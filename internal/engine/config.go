package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NotDec/NotDec-sub000/internal/graph"
)

// Post-processing levels applied to the final graphs before layout.
const (
	// PostProcessSketch groups nodes into sketches with a union-find.
	PostProcessSketch = 0
	// PostProcessDeterminize determinizes the sketch-split graph.
	PostProcessDeterminize = 1
	// PostProcessMinimize also minimizes the determinized graph.
	PostProcessMinimize = 2
)

// Config controls one analysis run.
//
// Values are layered: DefaultConfig, then an optional YAML file
// (LoadConfigFile), then environment variables (ApplyEnv), then CLI flags.
type Config struct {
	// DebugDir receives per-SCC graph dumps when set.
	DebugDir string `yaml:"debug_dir"`

	// DisableInterproc analyses every function on its own. Calls only see
	// override summaries.
	DisableInterproc bool `yaml:"disable_interproc"`

	// NoSCC puts every function into its own unit even when recursive.
	NoSCC bool `yaml:"no_scc"`

	// MergeMonomorphic merges consecutive SCCs without polymorphic
	// functions into one unit.
	MergeMonomorphic bool `yaml:"merge_monomorphic"`

	PostProcessLevel int `yaml:"postprocess_level"`

	// PolyFuncs lists functions treated as polymorphic in addition to
	// those marked in the program.
	PolyFuncs []string `yaml:"poly_funcs"`

	SatDisable    bool          `yaml:"sat_disable"`
	SatTimeout    time.Duration `yaml:"sat_timeout"`
	SatMaxRounds  int           `yaml:"sat_max_rounds"`
	SatStrict     bool          `yaml:"sat_strict"`
	NoPointerRule bool          `yaml:"no_pointer_rule"`

	// SummaryOverride and SignatureOverride are paths of JSON override
	// files (ir.SummaryFile).
	SummaryOverride   string `yaml:"summary_override"`
	SignatureOverride string `yaml:"signature_override"`

	// TraceIDs makes the graphs log every mutation of these nodes.
	TraceIDs []string `yaml:"trace_ids"`

	// PointerSize overrides the program's pointer size when non-zero.
	PointerSize uint32 `yaml:"pointer_size"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		PostProcessLevel: PostProcessSketch,
	}
}

// LoadConfigFile overlays the YAML file at path onto c.
func LoadConfigFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.Validate()
}

// Environment variables read by ApplyEnv.
const (
	EnvDebugDir          = "NOTDEC_TYPE_RECOVERY_DEBUG_DIR"
	EnvDisableInterproc  = "NOTDEC_DISABLE_INTERPROC"
	EnvPostProcessLevel  = "NOTDEC_POSTPROCESS_LEVEL"
	EnvPolyFuncs         = "NOTDEC_POLY_FUNCS"
	EnvSatDisable        = "NOTDEC_SAT_DISABLE"
	EnvSatTimeout        = "NOTDEC_SAT_TIMEOUT"
	EnvSatNoPtrRule      = "NOTDEC_SAT_NOPTRRULE"
	EnvSummaryOverride   = "NOTDEC_SUMMARY_OVERRIDE"
	EnvSignatureOverride = "NOTDEC_SIGNATURE_OVERRIDE"
	EnvTraceIDs          = "NOTDEC_TYPE_RECOVERY_TRACE_IDS"
	EnvNoSCC             = "NOTDEC_TYPE_RECOVERY_NO_SCC"
	EnvPointerSize       = "NOTDEC_POINTER_SIZE"
)

// ApplyEnv overlays the NOTDEC_* environment variables onto c. lookup is
// os.LookupEnv outside of tests.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	str(EnvDebugDir, &c.DebugDir)
	str(EnvSummaryOverride, &c.SummaryOverride)
	str(EnvSignatureOverride, &c.SignatureOverride)
	flag(EnvDisableInterproc, &c.DisableInterproc)
	flag(EnvSatDisable, &c.SatDisable)
	flag(EnvSatNoPtrRule, &c.NoPointerRule)
	flag(EnvNoSCC, &c.NoSCC)

	if v, ok := lookup(EnvPostProcessLevel); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPostProcessLevel, err)
		}
		c.PostProcessLevel = n
	}
	if v, ok := lookup(EnvSatTimeout); ok && v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSatTimeout, err)
		}
		c.SatTimeout = time.Duration(secs * float64(time.Second))
	}
	if v, ok := lookup(EnvPointerSize); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPointerSize, err)
		}
		c.PointerSize = uint32(n)
	}
	if v, ok := lookup(EnvTraceIDs); ok && v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.TraceIDs = append(c.TraceIDs, id)
			}
		}
	}
	if v, ok := lookup(EnvPolyFuncs); ok && v != "" {
		funcs, err := parsePolyFuncs(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPolyFuncs, err)
		}
		c.PolyFuncs = append(c.PolyFuncs, funcs...)
	}
	return c.Validate()
}

// parsePolyFuncs accepts an inline JSON array or the path of a file
// holding one.
func parsePolyFuncs(v string) ([]string, error) {
	data := []byte(v)
	if !strings.HasPrefix(strings.TrimSpace(v), "[") {
		var err error
		if data, err = os.ReadFile(v); err != nil {
			return nil, err
		}
	}
	var funcs []string
	if err := json.Unmarshal(data, &funcs); err != nil {
		return nil, err
	}
	return funcs, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.PostProcessLevel < PostProcessSketch || c.PostProcessLevel > PostProcessMinimize {
		return fmt.Errorf("postprocess level %d out of range 0-2", c.PostProcessLevel)
	}
	switch c.PointerSize {
	case 0, 16, 32, 64:
	default:
		return fmt.Errorf("unsupported pointer size %d", c.PointerSize)
	}
	if c.SatTimeout < 0 || c.SatMaxRounds < 0 {
		return fmt.Errorf("saturation limits must not be negative")
	}
	return nil
}

// saturateOptions builds the options of one saturation. Each call gets a
// fresh budget.
func (c *Config) saturateOptions() graph.SaturateOptions {
	opts := graph.SaturateOptions{
		Disable:       c.SatDisable,
		NoPointerRule: c.NoPointerRule,
		Strict:        c.SatStrict,
	}
	if c.SatTimeout > 0 || c.SatMaxRounds > 0 {
		opts.Budget = graph.NewBudget(c.SatMaxRounds, c.SatTimeout)
	}
	return opts
}
