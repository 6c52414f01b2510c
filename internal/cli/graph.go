package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/engine"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	EngineFlags
	Funcs  []string
	Dot    bool
	Output string
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	return newGraphCommand(&GraphOptions{RootOptions: rootOpts})
}

func newGraphCommand(opts *GraphOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <program>",
		Short: "Print the saturated constraint graph of functions",
		Long: `Build the constraint graph of the given functions on their own and
saturate it. Calls to functions outside the set stay unlinked.

Without --func every function of the program goes into one graph.

Examples:
  notdec graph ./prog.cue --func main
  notdec graph ./prog.cue --func even --func odd --dot -o even_odd.dot`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Funcs, "func", nil, "functions to build (repeatable)")
	cmd.Flags().BoolVar(&opts.Dot, "dot", false, "write Graphviz dot instead of text")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")
	opts.EngineFlags.register(cmd.Flags())

	return cmd
}

func runGraph(opts *GraphOptions, path string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions, &opts.EngineFlags, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bad configuration", err)
	}

	p, err := compiler.LoadProgram(path)
	if err != nil {
		le := convertCompileError(err, path)
		_ = formatter.Error(le.Code, le.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load program", le)
	}

	funcs := opts.Funcs
	if len(funcs) == 0 {
		for _, f := range p.Functions {
			funcs = append(funcs, f.Name)
		}
	}

	gen, err := engine.BuildUnit(p, cfg, newLogger(opts.RootOptions, cmd), funcs)
	if err != nil {
		_ = formatter.Error(analysisErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "graph build failed", err)
	}

	var w io.Writer = formatter.Writer
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	if opts.Dot {
		err = gen.CG.WriteDot(w)
	} else {
		err = gen.CG.WriteText(w)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write graph", err)
	}

	if opts.Output != "" {
		formatter.VerboseLog("Wrote graph of %v to %s", funcs, opts.Output)
		if !formatter.JSON() {
			fmt.Fprintf(formatter.Writer, "%s Wrote %s\n", formatter.PassMark(), opts.Output)
		}
	}
	for _, u := range gen.UnhandledCalls {
		formatter.VerboseLog("unlinked call %s: %s", u.Call, u.Reason)
	}
	return nil
}
