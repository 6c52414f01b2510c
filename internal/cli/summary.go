package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/store"
)

// SummaryOptions holds flags shared by the summary subcommands.
type SummaryOptions struct {
	*RootOptions
	Database string
	Output   string
}

// NewSummaryCommand creates the summary command and its subcommands.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Manage the summary cache",
		Long: `Inspect and maintain the component summaries cached by infer --db.

An exported cache is a summary override file: it can be passed back with
--summary-override to pin the summaries of library functions.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	export := &cobra.Command{
		Use:           "export",
		Short:         "Write the cached summaries as an override file",
		Example:       `  notdec summary export --db ./notdec.db -o libc.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummaryExport(opts, cmd)
		},
	}
	export.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	prune := &cobra.Command{
		Use:           "prune",
		Short:         "Drop every cached summary",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummaryPrune(opts, cmd)
		},
	}

	count := &cobra.Command{
		Use:           "count",
		Short:         "Print the number of cached summaries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummaryCount(opts, cmd)
		},
	}

	cmd.AddCommand(export, prune, count)
	return cmd
}

// openStore opens the database at path. A missing file is a command error
// so that read-only commands do not create empty databases.
func openStore(formatter *OutputFormatter, path string, mustExist bool) (*store.Store, error) {
	if mustExist {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", path), nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
	}
	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runSummaryExport(opts *SummaryOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	sums, err := st.ExportSummaries(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to export summaries", err)
	}

	if opts.Output == "" {
		if formatter.JSON() {
			return formatter.Success(sums)
		}
		data, err := ir.MarshalCanonical(sums)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to marshal summaries", err)
		}
		fmt.Fprintln(formatter.Writer, string(data))
		return nil
	}

	data, err := ir.MarshalCanonical(sums)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to marshal summaries", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write summaries", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"output": opts.Output, "summaries": len(sums)})
	}
	fmt.Fprintf(formatter.Writer, "%s Exported %d summaries to %s\n", formatter.PassMark(), len(sums), opts.Output)
	return nil
}

func runSummaryPrune(opts *SummaryOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PruneSummaries(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to prune summaries", err)
	}
	if formatter.JSON() {
		return formatter.Success(map[string]int64{"removed": n})
	}
	fmt.Fprintf(formatter.Writer, "%s Removed %d summaries\n", formatter.PassMark(), n)
	return nil
}

func runSummaryCount(opts *SummaryOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CountSummaries(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to count summaries", err)
	}
	if formatter.JSON() {
		return formatter.Success(map[string]int{"summaries": n})
	}
	fmt.Fprintln(formatter.Writer, n)
	return nil
}
