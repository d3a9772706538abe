package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/testutil"
)

const counterScript = `
- dispatch: increment
- dispatch: add
  payload: 5
- dispatch: rename
  payload: busy
- dispatch: push
  payload: { id: 1 }
`

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", counterScript)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--script", script)
	require.NoError(t, err)
	assert.Contains(t, out, "Dispatched 4 action(s), 0 failed (seq 4)")
	assert.Contains(t, out, `"count": 6`)
	assert.Contains(t, out, `"label": "busy"`)
}

func TestRunScriptJSON(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", counterScript)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), def, "--script", script)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "counter", resp.Data.Definition)
	assert.Equal(t, 4, resp.Data.Dispatched)
	assert.Equal(t, int64(4), resp.Data.Seq)
	assert.JSONEq(t, `{"count":6,"label":"busy","items":[{"id":1}]}`, string(resp.Data.State))
	assert.Empty(t, resp.Data.Metrics)
}

func TestRunWithoutScriptPrintsInitialState(t *testing.T) {
	def := writeFile(t, t.TempDir(), "counter.yaml", counterDefinition)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def)
	require.NoError(t, err)
	assert.Contains(t, out, "Dispatched 0 action(s), 0 failed (seq 0)")
	assert.Contains(t, out, `"label": "idle"`)
}

func TestRunFailedDispatchContinues(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", `
- dispatch: increment
- dispatch: nope
- dispatch: increment
`)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--script", script)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 action(s) failed")
	assert.Contains(t, out, "Dispatched 2 action(s), 1 failed (seq 2)")
	assert.Contains(t, out, `"count": 2`)
}

func TestRunMetrics(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", counterScript)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--script", script, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `kframe_store_dispatch_total{action="increment",outcome="ok"} 1`)
	assert.Contains(t, out, `kframe_store_dispatch_total{action="@@INIT",outcome="init"} 1`)
}

func TestRunJournalResumes(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", counterScript)
	db := filepath.Join(dir, "counter.db")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), def, "--script", script, "--db", db)
	require.NoError(t, err)

	// A second run replays the journal first and continues the seq.
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), def, "--script", script, "--db", db)
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 4, resp.Data.Resumed)
	assert.Equal(t, 4, resp.Data.Dispatched)
	assert.Equal(t, int64(8), resp.Data.Seq)
	assert.JSONEq(t, `{"count":12,"label":"busy","items":[{"id":1},{"id":1}]}`, string(resp.Data.State))
}

func TestRunJournalIDGenerator(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	script := writeFile(t, dir, "script.yaml", counterScript)
	db := filepath.Join(dir, "counter.db")
	ids := testutil.NewSequentialIDs("entry")

	cmd := newRunCommand(&RunOptions{RootOptions: &RootOptions{Format: "text"}, IDGenerator: ids})
	_, err := execute(t, cmd, def, "--script", script, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "entry-0005", ids.Generate())

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}), "--db", db, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, "entry-0001", resp.Data.Timeline[0].ID)
}

func TestRunJournalOtherDefinition(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)
	other := writeFile(t, dir, "other.yaml", "initialState:\n  on: false\nactions:\n  flip:\n    - toggle: on\n")
	db := filepath.Join(dir, "shared.db")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--db", db)
	require.NoError(t, err)

	_, err = execute(t, NewRunCommand(&RootOptions{Format: "text"}), other, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal does not match definition")
}

func TestRunInvalidScript(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "counter.yaml", counterDefinition)

	tests := []struct {
		name   string
		script string
	}{
		{"unknown field", "- dispatch: increment\n  args: 1\n"},
		{"missing dispatch", "- payload: 1\n"},
		{"not a list", "dispatch: increment\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := writeFile(t, dir, "script.yaml", tt.script)
			out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), def, "--script", script)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, ErrCodeScript)
		})
	}
}

func TestRunNonExistentDefinition(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "definition not found")
}
