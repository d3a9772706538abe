package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ESETdropout/kframe/internal/compiler"
	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/journal"
	"github.com/ESETdropout/kframe/internal/metrics"
	"github.com/ESETdropout/kframe/internal/tree"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script   string
	Database string
	Metrics  bool

	// IDGenerator overrides journal entry IDs (for testing).
	// If nil, defaults to journal.UUIDv7Generator.
	IDGenerator journal.IDGenerator
}

// RunResult is the outcome of a run.
type RunResult struct {
	Definition string          `json:"definition"`
	Resumed    int             `json:"resumed,omitempty"`
	Dispatched int             `json:"dispatched"`
	Failed     int             `json:"failed"`
	Seq        int64           `json:"seq"`
	State      json.RawMessage `json:"state"`
	Metrics    string          `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <definition>",
		Short: "Dispatch a script of actions against a definition",
		Long: `Create a store from a definition and feed it the actions in a script.

Actions go through the single-writer dispatch loop in script order. A
failed dispatch is logged and the loop continues with the next action.
The final state is printed when the script is drained.

With --db every committed dispatch is appended to a sqlite journal. An
existing journal is replayed and verified first, so successive runs
resume where the last one stopped.

Script format:
  - dispatch: addTodo
    payload: { id: 1, title: milk }
  - dispatch: toggleAll

Example:
  kframe run todo.yaml --script actions.yaml
  kframe run todo.yaml --script actions.yaml --db ./todo.db --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefinition(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "YAML list of actions to dispatch")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to sqlite journal (default from config)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print dispatch metrics")

	return cmd
}

func runDefinition(opts *RunOptions, path string, cmd *cobra.Command) error {
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

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rec := metrics.New(nil)
	s := engine.New(prog.Definition(), engine.WithMetrics(rec))
	if err := s.Init(); err != nil {
		return WrapExitError(ExitFailure, "initial pass failed", err)
	}

	result := RunResult{Definition: prog.Name}

	var jr *journal.Recorder
	if dbPath := opts.journalPath(opts.Database); dbPath != "" {
		j, err := openJournal(ctx, dbPath, prog)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()

		replayed, err := journal.Replay(ctx, j, s)
		if err != nil {
			return replayFailure(formatter, err)
		}
		result.Resumed = replayed.Entries
		formatter.VerboseLog("Resumed %d journaled action(s) at seq %d", replayed.Entries, replayed.LastSeq)

		var recOpts []journal.RecorderOption
		if opts.IDGenerator != nil {
			recOpts = append(recOpts, journal.WithIDGenerator(opts.IDGenerator))
		}
		jr = journal.NewRecorder(ctx, j, recOpts...)
		defer jr.Attach(s)()
	}

	committed := 0
	defer s.Listen(func(engine.Update) { committed++ })()

	loop := engine.NewLoop(s)
	for _, a := range actions {
		if err := loop.Enqueue(a.Name, a.Payload); err != nil {
			return WrapExitError(ExitCommandError, "failed to queue action", err)
		}
	}
	loop.Stop()

	slog.Info("running script", "definition", prog.Name, "actions", len(actions))
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatch loop error", err)
	}

	if jr != nil {
		if err := jr.Err(); err != nil {
			return WrapExitError(ExitCommandError, "failed to write journal", err)
		}
	}

	result.Dispatched = committed
	result.Failed = len(actions) - committed - loop.Len()
	result.Seq = s.Seq()
	if result.State, err = tree.MarshalValue(s.State()); err != nil {
		return WrapExitError(ExitCommandError, "failed to encode state", err)
	}

	var metricsText bytes.Buffer
	if opts.Metrics || opts.Config.Metrics {
		if err := rec.WriteText(&metricsText); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
		result.Metrics = metricsText.String()
	}

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d action(s) failed", result.Failed))
	}
	return nil
}

// openJournal opens the journal at path and checks it belongs to prog.
func openJournal(ctx context.Context, path string, prog *compiler.Program) (*journal.Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	if err := journal.Stamp(ctx, j, prog.Name, prog.InitialState); err != nil {
		_ = j.Close()
		if journal.IsMismatch(err) {
			return nil, WrapExitError(ExitFailure, "journal does not match definition", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to stamp journal", err)
	}
	return j, nil
}

// replayFailure reports a replay error. Divergence is a check failure.
func replayFailure(formatter *OutputFormatter, err error) error {
	var div *journal.DivergenceError
	if errors.As(err, &div) {
		_ = formatter.Error(ErrCodeDivergence, div.Error(), map[string]any{
			"seq":    div.Seq,
			"action": div.Action,
			"field":  div.Field,
		})
		return WrapExitError(ExitFailure, "journal replay diverged", err)
	}
	return WrapExitError(ExitCommandError, "failed to replay journal", err)
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if result.Resumed > 0 {
		fmt.Fprintf(w, "Resumed %d journaled action(s)\n", result.Resumed)
	}
	fmt.Fprintf(w, "Dispatched %d action(s), %d failed (seq %d)\n", result.Dispatched, result.Failed, result.Seq)

	var state bytes.Buffer
	if err := json.Indent(&state, result.State, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(w, state.String())

	if result.Metrics != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, result.Metrics)
	}
	return nil
}

// signalContext returns the command context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
