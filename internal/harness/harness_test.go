package harness

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/metrics"
	"github.com/ESETdropout/kframe/internal/tree"
)

const todoDefinition = `
initialState:
  filter: all
  todos: []
  count: 0
actions:
  add:
    - push: todos
      from: payload
    - inc: count
  setFilter:
    - set: filter
      from: payload
  drop:
    - remove: todos
      where: id
      from: payload
    - inc: count
      by: -1
`

// runInline writes definition and scenario into a temp dir and runs it.
func runInline(t *testing.T, scenario string, opts ...Option) *Result {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todo.yaml"), []byte(todoDefinition), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(s, opts...)
	require.NoError(t, err)
	return result
}

func TestRun_ArenaScenario(t *testing.T) {
	s, err := LoadScenario("testdata/arena.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, engine.InitAction, result.Trace[0].Action)
	assert.Equal(t, []string{"score", "banner", "enemies"}, result.Trace[0].Notified)

	kill := result.Trace[4]
	assert.Equal(t, int64(4), kill.Seq)
	assert.Equal(t, []Write{{Target: "enemies", Op: "remove", Name: "a"}}, kill.Writes)

	failed := result.Trace[6]
	assert.Equal(t, int64(0), failed.Seq)
	assert.Contains(t, failed.Error, "unknown action")

	assert.Equal(t, []string{"b"}, result.Views["enemies"].Keys)
	assert.Equal(t, tree.Bool(true), result.State.Lookup("over"))
}

func TestRun_ExpectationFailures(t *testing.T) {
	result := runInline(t, `
name: failing
definition: todo.yaml
observers:
  - name: counter
    bind: count
steps:
  - dispatch: add
    payload: { id: 1, title: milk }
    expect:
      changed: [filter]
      notified: []
      state:
        count: 2
  - dispatch: missing
  - dispatch: add
    payload: { id: 2 }
    expect:
      error: boom
`)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "steps[0] add: changed = [count], want [filter]")
	assert.Contains(t, result.Errors[1], "steps[0] add: notified = [counter], want []")
	assert.Contains(t, result.Errors[2], `steps[0] add: state "count" = 1, want 2`)
	assert.Contains(t, result.Errors[3], `steps[1] missing: unexpected error: unknown action "missing"`)
	assert.Contains(t, result.Errors[4], "expected error containing \"boom\", dispatch succeeded")

	// The failed step consumes no sequence number.
	assert.Equal(t, int64(2), result.Trace[3].Seq)
}

func TestRun_ToggleAndIndexKeyedList(t *testing.T) {
	result := runInline(t, `
name: toggles
definition: todo.yaml
observers:
  - name: allFilter
    toggle: filter == all
    property: selected
  - name: todos
    list:
      for: todo
      in: todos
steps:
  - dispatch: add
    payload: { id: 1, title: milk }
  - dispatch: setFilter
    payload: done
    expect:
      changed: [filter]
      notified: [allFilter]
assertions:
  - type: view
    observer: allFilter
    props:
      selected: null
  - type: view
    observer: todos
    keys: ["0"]
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	initWrites := result.Trace[0].Writes
	require.Len(t, initWrites, 1)
	assert.Equal(t, Write{Target: "allFilter", Op: "set", Name: "selected", Value: tree.String("")}, initWrites[0])

	add := result.Trace[1]
	assert.Equal(t, []string{"count"}, add.Changed)
	assert.Equal(t, []string{"todos"}, add.Notified, "lists notify through their dirty flag")
	require.Len(t, add.Writes, 1)
	assert.Equal(t, tree.String(`{"id":1,"title":"milk"}`), add.Writes[0].Value)

	assert.Equal(t, []Write{{Target: "allFilter", Op: "remove", Name: "selected"}}, result.Trace[2].Writes)
}

func TestRun_TemplateRenderer(t *testing.T) {
	result := runInline(t, `
name: templated
definition: todo.yaml
observers:
  - name: todos
    list:
      for: todo
      in: todos
      key: id
      template: "<li>{{ todo.title }}</li>"
steps:
  - dispatch: add
    payload: { id: 1, title: milk }
  - dispatch: add
    payload: { id: 2, title: eggs }
  - dispatch: drop
    payload: 1
assertions:
  - type: view
    observer: todos
    keys: ["2"]
  - type: final_state
    select: count
    equals: 1
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"<li>eggs</li>"}, result.Views["todos"].Nodes)
}

func TestRun_InvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("actions: 3\n"), 0644))

	_, err := Run(&Scenario{
		Name:       "bad",
		Definition: filepath.Join(dir, "bad.yaml"),
		Steps:      []Step{{Dispatch: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load definition")
}

func TestRun_InvalidBinding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todo.yaml"), []byte(todoDefinition), 0644))

	_, err := Run(&Scenario{
		Name:       "bad-binding",
		Definition: filepath.Join(dir, "todo.yaml"),
		Observers:  []ObserverSpec{{Name: "broken", Bind: "label:"}},
		Steps:      []Step{{Dispatch: "add"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `observer "broken"`)
}

func TestRun_Options(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := metrics.New(nil)

	result := runInline(t, `
name: observed
definition: todo.yaml
steps:
  - dispatch: add
    payload: { id: 1 }
  - dispatch: nope
    expect:
      error: unknown action
`, WithLogger(logger), WithStoreOptions(engine.WithMetrics(rec)))
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Contains(t, logs.String(), "scenario finished")
	assert.Contains(t, logs.String(), "step dispatched")

	var text bytes.Buffer
	require.NoError(t, rec.WriteText(&text))
	assert.Contains(t, text.String(), `kframe_store_dispatch_total{action="add",outcome="ok"} 1`)
	assert.Contains(t, text.String(), `kframe_store_dispatch_total{action="<unknown>",outcome="unknown_action"} 1`)
}
