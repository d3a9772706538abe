package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ESETdropout/kframe/internal/compiler"
	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Error codes for load failures.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeNotFound   = "E002"
	ErrCodeFormat     = "E003"
	ErrCodeCompile    = "E004"
	ErrCodeScript     = "E005"
	ErrCodeDivergence = "E_DIVERGENCE"
)

// LoadError is a definition or script loading failure.
type LoadError struct {
	Code    string
	Message string
	Pos     compiler.Position
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadDefinition compiles the definition at path. Failures are *LoadError.
func loadDefinition(path string) (*compiler.Program, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definition: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition is a directory: %s", path)}
	}
	if _, err := compiler.FormatOf(path); err != nil {
		return nil, &LoadError{Code: ErrCodeFormat, Message: err.Error()}
	}

	prog, err := compiler.Load(path)
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			return nil, &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message), Pos: ce.Pos}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return prog, nil
}

// scriptStep is one entry of a dispatch script.
type scriptStep struct {
	Dispatch string    `yaml:"dispatch"`
	Payload  yaml.Node `yaml:"payload,omitempty"`
}

// loadScript reads a YAML list of {dispatch, payload} entries.
func loadScript(path string) ([]engine.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("read script: %v", err)}
	}

	var steps []scriptStep
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&steps); err != nil {
		return nil, &LoadError{Code: ErrCodeScript, Message: fmt.Sprintf("parse script %s: %v", path, err)}
	}

	actions := make([]engine.Action, 0, len(steps))
	for i, s := range steps {
		if s.Dispatch == "" {
			return nil, &LoadError{Code: ErrCodeScript, Message: fmt.Sprintf("%s: [%d]: dispatch is required", path, i)}
		}
		var payload tree.Value = tree.Null{}
		if s.Payload.Kind != 0 {
			if payload, err = tree.FromYAML(&s.Payload); err != nil {
				return nil, &LoadError{Code: ErrCodeScript, Message: fmt.Sprintf("%s: [%d] payload: %v", path, i, err)}
			}
		}
		actions = append(actions, engine.Action{Name: s.Dispatch, Payload: payload})
	}
	return actions, nil
}

// loadError writes err through the formatter and returns the matching exit
// error. Load failures are command errors.
func loadError(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		var details any
		if le.Pos.IsValid() {
			details = map[string]any{"file": le.Pos.Filename, "line": le.Pos.Line, "column": le.Pos.Column}
		}
		_ = f.Error(le.Code, le.Message, details)
		return WrapExitError(ExitCommandError, le.Code, err)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}
