package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NotDec/NotDec-sub000/internal/engine"
	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/store"
)

// InferOptions holds flags for the infer command.
type InferOptions struct {
	*RootOptions
	EngineFlags
	Database string
	Jobs     int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// InferResult is the outcome for one program file.
type InferResult struct {
	Path   string     `json:"path"`
	Result *ir.Result `json:"result"`
}

// NewInferCommand creates the infer command.
func NewInferCommand(rootOpts *RootOptions) *cobra.Command {
	return newInferCommand(&InferOptions{RootOptions: rootOpts})
}

func newInferCommand(opts *InferOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer <program>...",
		Short: "Recover the types of one or more programs",
		Long: `Run type recovery over program files (.cue or .json).

Directories are expanded to every program file below them. Programs are
analysed concurrently; the first failure cancels the rest. With --db the
summaries of analysed components are cached and every run is recorded.

Exit codes:
  0 - All programs analysed
  1 - Analysis failed
  2 - Command error (invalid paths, bad configuration, etc.)

Examples:
  notdec infer ./prog.cue
  notdec infer --db ./notdec.db --jobs 8 ./programs
  notdec infer --level 2 --format json ./prog.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for the summary cache and run history")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 4, "programs analysed in parallel")
	opts.EngineFlags.register(cmd.Flags())

	return cmd
}

func runInfer(opts *InferOptions, paths []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions, &opts.EngineFlags, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bad configuration", err)
	}

	loaded, loadErrs := LoadPrograms(paths, LoadModeFailFast)
	if len(loadErrs) > 0 {
		code := ErrCodeLoadFailed
		if le, ok := loadErrs[0].(*LoadError); ok {
			code = le.Code
		}
		_ = formatter.Error(code, loadErrs[0].Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load programs", loadErrs[0])
	}

	engOpts := []engine.EngineOption{engine.WithLogger(logger), engine.WithConfig(cfg)}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Database != "" {
		logger.Debug("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		engOpts = append(engOpts, engine.WithStore(st))
	}
	eng := engine.New(engOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]InferResult, len(loaded.Programs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}
	for i, lp := range loaded.Programs {
		g.Go(func() error {
			formatter.VerboseLog("Analysing %s", lp.Path)
			res, err := eng.Run(gctx, lp.Program)
			if err != nil {
				return fmt.Errorf("%s: %w", lp.Path, err)
			}
			results[i] = InferResult{Path: lp.Path, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = formatter.Error(analysisErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "analysis failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(results)
	}
	for _, r := range results {
		writeResultText(formatter.Writer, r)
	}
	return nil
}

// analysisErrorCode maps input problems to ErrCodeInvalid and everything
// else to ErrCodeAnalysis.
func analysisErrorCode(err error) string {
	if engine.IsInputError(err) {
		return ErrCodeInvalid
	}
	return ErrCodeAnalysis
}

// writeResultText prints one result in the human-readable layout.
func writeResultText(w io.Writer, r InferResult) {
	res := r.Result
	fmt.Fprintf(w, "== %s (run %s)\n", r.Path, res.RunID)
	for _, v := range res.Values {
		fmt.Fprintf(w, "%s: %s", v.Value, v.Upper)
		if v.Lower != "" && v.Lower != v.Upper {
			fmt.Fprintf(w, " (lower %s)", v.Lower)
		}
		fmt.Fprintln(w)
	}
	if res.Memory != "" {
		fmt.Fprintf(w, "memory: %s\n", res.Memory)
	}
	for _, d := range res.Declarations {
		fmt.Fprintln(w)
		fmt.Fprintln(w, d)
	}
	for _, u := range res.Unhandled {
		fmt.Fprintf(w, "unhandled %s in %s: %s\n", u.Call, u.Caller, u.Reason)
	}
	for _, d := range res.Diagnostics {
		if d.Function != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", d.Severity, d.Function, d.Message)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", d.Severity, d.Message)
	}
	fmt.Fprintln(w)
}
