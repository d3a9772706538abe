package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/compiler"
)

// execute runs cmd with args and returns stdout and the error.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDefinition(t *testing.T) {
	def := writeFile(t, t.TempDir(), "counter.yaml", counterDefinition)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), def)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter valid (4 action(s))")
}

func TestValidateValidDefinitionJSON(t *testing.T) {
	def := writeFile(t, t.TempDir(), "counter.yaml", counterDefinition)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), def)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"increment", "add", "rename", "push"}, resp.Data.Actions)
}

func TestValidateCUEDefinition(t *testing.T) {
	def := writeFile(t, t.TempDir(), "flag.cue", `
initialState: {on: false}
actions: flip: [{toggle: "on"}]
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), def)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ flag valid")
}

func TestValidateSemanticErrors(t *testing.T) {
	def := writeFile(t, t.TempDir(), "broken.yaml", `
initialState:
  count: 0
nonBindedStateKeys: [ghost]
actions:
  add:
    - push: count
      value: 1
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), def)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownNonTracked)
	assert.Contains(t, out, compiler.ErrNotAList)
}

func TestValidateSemanticErrorsJSON(t *testing.T) {
	def := writeFile(t, t.TempDir(), "empty.yaml", "initialState:\n  count: 0\nactions: {}\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), def)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrNoActions, resp.Error.Code)
}

func TestValidateCompileErrorReportsLine(t *testing.T) {
	def := writeFile(t, t.TempDir(), "bad.yaml", `initialState:
  count: 0
actions:
  add:
    - explode: count
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), def)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "line 5")
	assert.Contains(t, out, ErrCodeCompile)
}

func TestValidateNonExistentFile(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestValidateUnsupportedFormat(t *testing.T) {
	def := writeFile(t, t.TempDir(), "counter.txt", counterDefinition)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), def)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeFormat)
}
