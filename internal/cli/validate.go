package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
)

// ValidationIssue is one problem found in a program file.
type ValidationIssue struct {
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                         `json:"valid"`
	Files    int                          `json:"files"`
	Errors   []ValidationIssue            `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>...",
		Short: "Validate programs without analysing them",
		Long: `Validate program files (.cue or .json) without running the analysis.

Checks the #Program schema, parses every constraint and cell and reports
recursive call-graph components. All files are checked; every problem is
reported instead of stopping at the first.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts, cmd)

	loadResult, loadErrors := LoadPrograms(paths, LoadModeCollectAll)

	// Handle errors that stop loading altogether (path not found, no files)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error())
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d program file(s)", loadResult.FileCount)

	result := ValidationResult{Files: loadResult.FileCount}
	for _, err := range loadErrors {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			result.Errors = append(result.Errors, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
			continue
		}
		issue := ValidationIssue{Path: loadErr.Path, Field: "load", Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
		result.Errors = append(result.Errors, issue)
	}

	for _, lp := range loadResult.Programs {
		formatter.VerboseLog("Validating %s", lp.Path)
		for _, ve := range compiler.ValidateProgram(lp.Program) {
			result.Errors = append(result.Errors, ValidationIssue{
				Path:    lp.Path,
				Field:   ve.Field,
				Code:    ve.Code,
				Message: ve.Message,
			})
		}
		result.Warnings = append(result.Warnings, compiler.AnalyzeRecursion(compiler.BuildCallGraph(lp.Program))...)
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "%s: %s\n", w.Level, w.Message)
	}
	fmt.Fprintf(formatter.Writer, "%s All programs valid (%d file(s))\n", formatter.PassMark(), result.Files)
	return nil
}

// outputValidateError outputs an error that prevented validation.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation problem.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", formatter.FailMark())
	for _, e := range result.Errors {
		switch {
		case e.Line > 0:
			fmt.Fprintf(formatter.Writer, "%s:%d\n", e.Path, e.Line)
		case e.Path != "":
			fmt.Fprintln(formatter.Writer, e.Path)
		}
		if e.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return failed
}
