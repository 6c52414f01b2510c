package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NotDec/NotDec-sub000/internal/engine"
)

// EngineFlags are the engine settings a command exposes as flags. Only
// flags set on the command line override the lower layers.
type EngineFlags struct {
	PostProcessLevel  int
	DisableInterproc  bool
	NoSCC             bool
	MergeMonomorphic  bool
	PolyFuncs         []string
	SummaryOverride   string
	SignatureOverride string
	DebugDir          string
	PointerSize       uint32
	SatDisable        bool
	SatMaxRounds      int
	SatStrict         bool
	NoPointerRule     bool

	// LookupEnv replaces os.LookupEnv (for testing).
	LookupEnv func(string) (string, bool)
}

func (f *EngineFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.PostProcessLevel, "level", engine.PostProcessSketch, "sketch post-processing (0 none, 1 determinize, 2 minimize)")
	fs.BoolVar(&f.DisableInterproc, "no-interproc", false, "analyse every function on its own")
	fs.BoolVar(&f.NoSCC, "no-scc", false, "do not group recursive functions")
	fs.BoolVar(&f.MergeMonomorphic, "merge-monomorphic", false, "merge consecutive monomorphic components")
	fs.StringSliceVar(&f.PolyFuncs, "poly", nil, "additional polymorphic functions")
	fs.StringVar(&f.SummaryOverride, "summary-override", "", "JSON file of summary overrides")
	fs.StringVar(&f.SignatureOverride, "signature-override", "", "JSON file of signature overrides")
	fs.StringVar(&f.DebugDir, "debug-dir", "", "write per-component graph dumps here")
	fs.Uint32Var(&f.PointerSize, "pointer-size", 0, "override the program pointer size")
	fs.BoolVar(&f.SatDisable, "no-saturate", false, "skip saturation")
	fs.IntVar(&f.SatMaxRounds, "sat-max-rounds", 0, "saturation round limit (0 = unlimited)")
	fs.BoolVar(&f.SatStrict, "sat-strict", false, "fail when saturation exceeds its budget")
	fs.BoolVar(&f.NoPointerRule, "no-pointer-rule", false, "disable the load/store pointer rule")
}

// resolveConfig layers DefaultConfig, the --config file, the environment
// and finally the flags that were set on cmd.
func resolveConfig(root *RootOptions, f *EngineFlags, cmd *cobra.Command) (engine.Config, error) {
	c := engine.DefaultConfig()
	if root.Config != "" {
		if err := engine.LoadConfigFile(&c, root.Config); err != nil {
			return c, err
		}
	}
	lookup := f.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := engine.ApplyEnv(&c, lookup); err != nil {
		return c, err
	}

	fs := cmd.Flags()
	if fs.Changed("level") {
		c.PostProcessLevel = f.PostProcessLevel
	}
	if fs.Changed("no-interproc") {
		c.DisableInterproc = f.DisableInterproc
	}
	if fs.Changed("no-scc") {
		c.NoSCC = f.NoSCC
	}
	if fs.Changed("merge-monomorphic") {
		c.MergeMonomorphic = f.MergeMonomorphic
	}
	if fs.Changed("poly") {
		c.PolyFuncs = append(c.PolyFuncs, f.PolyFuncs...)
	}
	if fs.Changed("summary-override") {
		c.SummaryOverride = f.SummaryOverride
	}
	if fs.Changed("signature-override") {
		c.SignatureOverride = f.SignatureOverride
	}
	if fs.Changed("debug-dir") {
		c.DebugDir = f.DebugDir
	}
	if fs.Changed("pointer-size") {
		c.PointerSize = f.PointerSize
	}
	if fs.Changed("no-saturate") {
		c.SatDisable = f.SatDisable
	}
	if fs.Changed("sat-max-rounds") {
		c.SatMaxRounds = f.SatMaxRounds
	}
	if fs.Changed("sat-strict") {
		c.SatStrict = f.SatStrict
	}
	if fs.Changed("no-pointer-rule") {
		c.NoPointerRule = f.NoPointerRule
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// newLogger returns a text logger on the command's stderr. Verbose runs
// log at debug level.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
