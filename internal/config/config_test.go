package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kframe.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoad_ReadsValues(t *testing.T) {
	path := writeConfig(t, `
log_level = "DEBUG"
format = "json"
journal = "runs/game.db"
metrics = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, filepath.Join("runs", "game.db"), cfg.Journal)
	assert.True(t, cfg.Metrics)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `metrics = true`))
	require.NoError(t, err)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Equal(t, defaultFormat, cfg.Format)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg, err := Load(writeConfig(t, `journal = "~/kframe/j.db"`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "kframe", "j.db"), cfg.Journal)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", `colour = "red"`, "colour"},
		{"bad level", `log_level = "loud"`, "LogLevel"},
		{"bad format", `format = "xml"`, "Format"},
		{"bad journal", `journal = "j.sqlite"`, "Journal"},
		{"syntax", `log_level = `, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
