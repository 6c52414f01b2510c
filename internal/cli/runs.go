package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NotDec/NotDec-sub000/internal/ir"
	"github.com/NotDec/NotDec-sub000/internal/queryir"
	"github.com/NotDec/NotDec-sub000/internal/store"
)

// RunsOptions holds flags for the runs command and its subcommands.
type RunsOptions struct {
	*RootOptions
	Database    string
	ProgramHash string
	Where       string
}

// RunChange is the JSON form of a store.ValueChange.
type RunChange struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

// NewRunsCommand creates the runs command and its subcommands.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded analysis runs",
		Long: `List, show, compare and delete the runs recorded by infer --db.

Examples:
  notdec runs list --db ./notdec.db
  notdec runs show --db ./notdec.db 019a...
  notdec runs diff --db ./notdec.db <old-run> <new-run>
  notdec runs values --db ./notdec.db --where "value == 'main#ret'"
  notdec runs calls --db ./notdec.db --where "reason ~ 'indirect'"`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.ProgramHash, "program", "", "only runs of the program with this hash")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Print the types recorded by a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0], cmd)
		},
	}

	diff := &cobra.Command{
		Use:           "diff <old-run> <new-run>",
		Short:         "Compare the value types of two runs",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsDiff(opts, args[0], args[1], cmd)
		},
	}

	del := &cobra.Command{
		Use:           "delete <run-id>",
		Short:         "Delete a run and its recorded types",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsDelete(opts, args[0], cmd)
		},
	}

	values := &cobra.Command{
		Use:   "values",
		Short: "Search recorded value types across runs",
		Long: `Search the value types of every recorded run.

--where takes comparisons joined with AND:
  field == 'text'   field == 42   field ~ 'substring'

Fields: id, seq, program_hash, value, upper, lower, size.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsValues(opts, cmd)
		},
	}
	values.Flags().StringVar(&opts.Where, "where", "", "filter expression")

	calls := &cobra.Command{
		Use:   "calls",
		Short: "Search recorded unhandled calls across runs",
		Long: `Search the unhandled calls of every recorded run.

Fields: id, seq, program_hash, call, caller, callee, reason.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsCalls(opts, cmd)
		},
	}
	calls.Flags().StringVar(&opts.Where, "where", "", "filter expression")

	cmd.AddCommand(list, show, diff, del, values, calls)
	return cmd
}

func runRunsList(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.ProgramHash)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  seq=%d  program=%s  values=%d  unhandled=%d\n",
			r.ID, r.Seq, r.ProgramHash, r.Values, r.Unhandled)
	}
	return nil
}

func runRunsValues(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	filter, err := parseWhere(formatter, opts.Where)
	if err != nil {
		return err
	}
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.FindValues(cmd.Context(), filter)
	if err != nil {
		return historyQueryError(formatter, err)
	}
	if formatter.JSON() {
		return formatter.Success(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(formatter.Writer, "No matching values.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(formatter.Writer, "%s  seq=%d  %s: %s", r.RunID, r.Seq, r.Value, r.Upper)
		if r.Lower != "" && r.Lower != r.Upper {
			fmt.Fprintf(formatter.Writer, " (lower %s)", r.Lower)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

func runRunsCalls(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	filter, err := parseWhere(formatter, opts.Where)
	if err != nil {
		return err
	}
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.FindUnhandled(cmd.Context(), filter)
	if err != nil {
		return historyQueryError(formatter, err)
	}
	if formatter.JSON() {
		return formatter.Success(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(formatter.Writer, "No matching calls.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(formatter.Writer, "%s  seq=%d  %s in %s: %s\n", r.RunID, r.Seq, r.Call, r.Caller, r.Reason)
	}
	return nil
}

func parseWhere(formatter *OutputFormatter, where string) (queryir.Predicate, error) {
	filter, err := queryir.ParseFilter(where)
	if err != nil {
		_ = formatter.Error(ErrCodeFilter, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "bad filter", err)
	}
	return filter, nil
}

// historyQueryError reports a failed history search. Unknown fields are the
// caller's mistake, everything else is a database error.
func historyQueryError(formatter *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrInvalidQuery) {
		_ = formatter.Error(ErrCodeFilter, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bad filter", err)
	}
	_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to search runs", err)
}

func runRunsShow(opts *RunsOptions, id string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := readRun(formatter, st, cmd, id)
	if err != nil {
		return err
	}
	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: res, RunID: res.RunID})
	}
	writeResultText(formatter.Writer, InferResult{Path: res.ProgramHash, Result: res})
	return nil
}

func runRunsDiff(opts *RunsOptions, oldID, newID string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, id := range []string{oldID, newID} {
		if _, err := readRun(formatter, st, cmd, id); err != nil {
			return err
		}
	}

	changes, err := st.DiffRuns(cmd.Context(), oldID, newID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to diff runs", err)
	}

	if formatter.JSON() {
		out := make([]RunChange, len(changes))
		for i, c := range changes {
			out[i] = RunChange{Kind: c.Kind.String(), Value: c.Value, Old: c.Old, New: c.New}
		}
		return formatter.Success(out)
	}
	if len(changes) == 0 {
		fmt.Fprintf(formatter.Writer, "%s No type changes\n", formatter.PassMark())
		return nil
	}
	for _, c := range changes {
		switch c.Kind {
		case store.ChangeAdded:
			fmt.Fprintf(formatter.Writer, "+ %s: %s\n", c.Value, c.New)
		case store.ChangeRemoved:
			fmt.Fprintf(formatter.Writer, "- %s: %s\n", c.Value, c.Old)
		default:
			fmt.Fprintf(formatter.Writer, "~ %s: %s -> %s\n", c.Value, c.Old, c.New)
		}
	}
	return nil
}

func runRunsDelete(opts *RunsOptions, id string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd)
	st, err := openStore(formatter, opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := readRun(formatter, st, cmd, id); err != nil {
		return err
	}
	if err := st.DeleteRun(cmd.Context(), id); err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to delete run", err)
	}
	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", RunID: id})
	}
	fmt.Fprintf(formatter.Writer, "%s Deleted run %s\n", formatter.PassMark(), id)
	return nil
}

// readRun reads a run and reports a missing one as ErrCodeNotFound.
func readRun(formatter *OutputFormatter, st *store.Store, cmd *cobra.Command, id string) (*ir.Result, error) {
	res, err := st.ReadRun(cmd.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", id), nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return res, nil
}
