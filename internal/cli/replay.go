package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ESETdropout/kframe/internal/compiler"
	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the replay outcome.
type ReplayResult struct {
	Definition    string `json:"definition"`
	Entries       int    `json:"entries"`
	LastSeq       int64  `json:"last_seq"`
	StateHash     string `json:"state_hash"`
	Deterministic bool   `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <definition>",
		Short: "Replay a journal and verify determinism",
		Long: `Re-dispatch every journaled action into a fresh store and verify that
each dispatch reproduces the recorded seq and state hash. The journal is
replayed twice and both final states must hash the same.

Exit codes:
  0 - Replay reproduced the journal
  1 - Replay diverged or the journal belongs to another definition
  2 - Command error (journal not found, etc.)

Examples:
  kframe replay todo.yaml --db ./todo.db
  kframe replay todo.yaml --db ./todo.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to sqlite journal (default from config)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, err := loadDefinition(path)
	if err != nil {
		return loadError(formatter, err)
	}

	j, err := openExistingJournal(opts.journalPath(opts.Database))
	if err != nil {
		return err
	}
	defer j.Close()

	if err := journal.Stamp(ctx, j, prog.Name, prog.InitialState); err != nil {
		if journal.IsMismatch(err) {
			_ = formatter.Error(ErrCodeDivergence, err.Error(), nil)
			return WrapExitError(ExitFailure, "journal does not match definition", err)
		}
		return WrapExitError(ExitCommandError, "failed to stamp journal", err)
	}

	first, err := replayInto(ctx, j, prog)
	if err != nil {
		return replayFailure(formatter, err)
	}
	formatter.VerboseLog("First replay: %d entries, state %s", first.Entries, first.StateHash)

	second, err := replayInto(ctx, j, prog)
	if err != nil {
		return replayFailure(formatter, err)
	}

	result := ReplayResult{
		Definition:    prog.Name,
		Entries:       first.Entries,
		LastSeq:       first.LastSeq,
		StateHash:     first.StateHash,
		Deterministic: first == second,
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replays produced different states")
	}
	return nil
}

func replayInto(ctx context.Context, j *journal.Journal, prog *compiler.Program) (journal.ReplayResult, error) {
	return journal.Replay(ctx, j, engine.New(prog.Definition()))
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) {
	w := formatter.Writer

	if result.Entries == 0 {
		fmt.Fprintf(w, "No entries in journal for %s.\n", result.Definition)
		return
	}

	fmt.Fprintf(w, "Replayed %d entries of %s (last seq %d)\n", result.Entries, result.Definition, result.LastSeq)
	fmt.Fprintf(w, "  State hash: %s\n", result.StateHash)
	if result.Deterministic {
		fmt.Fprintln(w, "✓ Deterministic")
	} else {
		fmt.Fprintln(w, "✗ Non-deterministic")
	}
}
