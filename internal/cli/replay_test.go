package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/journal"
	"github.com/ESETdropout/kframe/internal/tree"
)

func TestReplayDeterministic(t *testing.T) {
	def, db := journaledRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), def, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 4 entries of counter (last seq 4)")
	assert.Contains(t, out, "✓ Deterministic")
}

func TestReplayJSON(t *testing.T) {
	def, db := journaledRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "json"}), def, "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Entries)
	assert.True(t, resp.Data.Deterministic)
	assert.NotEmpty(t, resp.Data.StateHash)
}

func TestReplayDivergence(t *testing.T) {
	def, db := journaledRun(t)

	// Append an entry whose recorded hash cannot be reproduced.
	ctx := context.Background()
	j, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, journal.Entry{
		ID:        "forged",
		Seq:       5,
		Action:    "increment",
		Payload:   tree.Null{},
		Changed:   []string{"count"},
		StateHash: "0000",
	}))
	require.NoError(t, j.Close())

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), def, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, journal.IsDivergence(err))
	assert.Contains(t, out, ErrCodeDivergence)
}

func TestReplayWrongDefinition(t *testing.T) {
	_, db := journaledRun(t)
	other := writeFile(t, t.TempDir(), "other.yaml", "initialState:\n  on: false\nactions:\n  flip:\n    - toggle: on\n")

	_, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), other, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, journal.IsMismatch(err))
}

func TestReplayEmptyJournal(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	db := dir + "/empty.db"

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), def, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No entries in journal for counter.")
}
