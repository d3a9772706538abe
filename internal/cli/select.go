package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// ErrCodeSelector marks a selector that failed to evaluate.
const ErrCodeSelector = "E006"

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	Script string
}

// SelectResult is the value of one selector.
type SelectResult struct {
	Expr  string          `json:"expr"`
	Seq   int64           `json:"seq"`
	Value json.RawMessage `json:"value"`
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <definition> <expr>",
		Short: "Evaluate a selector against a definition's state",
		Long: `Evaluate a selector expression against the initial state of a
definition, or against the state after dispatching a script.

Examples:
  kframe select todo.yaml 'todos.length'
  kframe select todo.yaml 'filter == all && !loading' --script actions.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "YAML list of actions to dispatch first")

	return cmd
}

func runSelect(opts *SelectOptions, path, expr string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, err := loadDefinition(path)
	if err != nil {
		return loadError(formatter, err)
	}
	var actions []engine.Action
	if opts.Script != "" {
		if actions, err = loadScript(opts.Script); err != nil {
			return loadError(formatter, err)
		}
	}

	s := engine.New(prog.Definition())
	for i, a := range actions {
		if _, err := s.Dispatch(a.Name, a.Payload); err != nil {
			_ = formatter.Error(ErrCodeScript, fmt.Sprintf("[%d] %s: %v", i, a.Name, err), nil)
			return WrapExitError(ExitFailure, "dispatch failed", err)
		}
	}

	v, err := s.Evaluator().Select(s.State(), expr, nil)
	if err != nil {
		details := map[string]any{"expr": expr}
		if selector.IsSyntaxError(err) {
			details["kind"] = "syntax"
		} else if selector.IsPathResolutionError(err) {
			details["kind"] = "path"
		}
		_ = formatter.Error(ErrCodeSelector, err.Error(), details)
		return WrapExitError(ExitFailure, "selector failed", err)
	}

	data, err := tree.MarshalValue(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode value", err)
	}

	if formatter.JSON() {
		return formatter.Success(SelectResult{Expr: expr, Seq: s.Seq(), Value: data})
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
