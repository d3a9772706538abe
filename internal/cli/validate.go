package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ESETdropout/kframe/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Definition string                     `json:"definition,omitempty"`
	Actions    []string                   `json:"actions,omitempty"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Check a definition without running it",
		Long: `Compile a definition file and check it against its own initial state.

Reports syntax and schema errors with their source line, unknown
non-tracked keys, operations on keys missing from initialState and
list operations on values that are not lists.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	prog, err := loadDefinition(path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Code == ErrCodeCompile {
			// A definition that does not compile is invalid, not a command error.
			return outputValidationErrors(formatter, []compiler.ValidationError{{
				Field:   "definition",
				Message: le.Message,
				Code:    le.Code,
				Line:    le.Pos.Line,
			}})
		}
		return loadError(formatter, err)
	}

	formatter.VerboseLog("Compiled %s: %d action(s), %d computed key(s)", prog.Path, len(prog.Actions), len(prog.Computed))

	if errs := compiler.Validate(prog); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Definition: prog.Name, Actions: prog.ActionNames()})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d action(s))\n", prog.Name, len(prog.Actions))
	return nil
}

// outputValidationErrors outputs validation problems. They are check
// failures (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return failed
}
