package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ESETdropout/kframe/internal/config"
	"github.com/ESETdropout/kframe/internal/journal"
	"github.com/ESETdropout/kframe/internal/tree"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Action   string // optional - filter to specific action
	AfterSeq int64
	Limit    int
}

// TraceEntry is one journaled dispatch in the timeline.
type TraceEntry struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Changed   []string        `json:"changed"`
	StateHash string          `json:"state_hash"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Definition string       `json:"definition,omitempty"`
	Timeline   []TraceEntry `json:"timeline"`
	Stats      TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Entries int            `json:"entries"`
	Total   int            `json:"total"`
	LastSeq int64          `json:"last_seq"`
	Actions map[string]int `json:"actions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled dispatches",
		Long: `List the dispatches recorded in a journal.

Each entry shows its seq, action, payload and the top-level keys it
changed. Filters narrow the timeline; stats always describe the whole
journal.

Examples:
  kframe trace --db ./todo.db
  kframe trace --db ./todo.db --action addTodo
  kframe trace --db ./todo.db --after 10 --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to sqlite journal (default from config)")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to a specific action")
	cmd.Flags().Int64Var(&opts.AfterSeq, "after", 0, "only entries with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	j, err := openExistingJournal(opts.journalPath(opts.Database))
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Read(ctx, journal.Filter{
		Action:   opts.Action,
		AfterSeq: opts.AfterSeq,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	all, err := j.Read(ctx, journal.Filter{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	name, _, err := j.Meta(ctx, journal.MetaDefinition)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal metadata", err)
	}

	result := TraceResult{
		Definition: name,
		Timeline:   make([]TraceEntry, 0, len(entries)),
		Stats: TraceStats{
			Entries: len(entries),
			Total:   len(all),
			Actions: make(map[string]int),
		},
	}
	for _, e := range all {
		result.Stats.Actions[e.Action]++
		result.Stats.LastSeq = e.Seq
	}
	for _, e := range entries {
		payload, err := tree.MarshalValue(e.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode payload", err)
		}
		result.Timeline = append(result.Timeline, TraceEntry{
			Seq:       e.Seq,
			ID:        e.ID,
			Action:    e.Action,
			Payload:   payload,
			Changed:   e.Changed,
			StateHash: e.StateHash,
		})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

// openExistingJournal opens a journal that must already exist.
func openExistingJournal(path string) (*journal.Journal, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required (or set journal in "+config.DefaultPath+")")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer

	if result.Definition != "" {
		fmt.Fprintf(w, "Journal for %s\n\n", result.Definition)
	}
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No entries found.")
	}
	for _, e := range result.Timeline {
		changed := "-"
		if len(e.Changed) > 0 {
			changed = strings.Join(e.Changed, ",")
		}
		fmt.Fprintf(w, "[%d] %s %s changed=%s\n", e.Seq, e.Action, e.Payload, changed)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d of %d entries shown, last seq %d\n", result.Stats.Entries, result.Stats.Total, result.Stats.LastSeq)

	actions := make([]string, 0, len(result.Stats.Actions))
	for a := range result.Stats.Actions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %s: %d\n", a, result.Stats.Actions[a])
	}
	return nil
}
