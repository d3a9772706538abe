// Package config loads the optional kframe.toml settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
)

// DefaultPath is the settings file looked up when no path is given.
const DefaultPath = "kframe.toml"

const (
	defaultLogLevel = "warn"
	defaultFormat   = "text"
)

// Config holds CLI settings. Flags override file values.
type Config struct {
	// LogLevel is the slog level: debug, info, warn or error.
	LogLevel string `toml:"log_level" validate:"oneof=debug info warn error"`

	// Format is the CLI output format: text or json.
	Format string `toml:"format" validate:"oneof=text json"`

	// Journal is the default sqlite journal path for run, trace and replay.
	Journal string `toml:"journal" validate:"omitempty,endswith=.db"`

	// Metrics prints dispatch metrics after run.
	Metrics bool `toml:"metrics"`
}

var validate = validator.New()

// Default returns the built-in settings.
func Default() Config {
	return Config{LogLevel: defaultLogLevel, Format: defaultFormat}
}

// Load reads the settings file at path, or DefaultPath when path is empty.
// A missing file yields the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Journal != "" {
		if cfg.Journal, err = expandPath(cfg.Journal); err != nil {
			return Config{}, fmt.Errorf("config journal: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: invalid value %q (%s)", fe.Field(), fe.Value(), fe.ActualTag())
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Clean(trimmed), nil
}
