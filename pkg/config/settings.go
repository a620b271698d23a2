package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/inferline/inferline/pkg/telemetry"
)

// Settings is the resolved configuration of the compiler. Values come
// from a settings file (CUE, YAML, or JSON) layered over defaults.
type Settings struct {
	// WorkspaceRoot is the directory that holds build workspaces.
	WorkspaceRoot string `json:"workspace_root" yaml:"workspace_root" validate:"required"`

	// StorePath is the SQLite database holding workspace records,
	// aliases, and the build lock.
	StorePath string `json:"store_path" yaml:"store_path" validate:"required"`

	// PolicyPaths are extra .rego policy files or directories loaded
	// into the policy gate.
	PolicyPaths []string `json:"policy_paths,omitempty" yaml:"policy_paths,omitempty" validate:"omitempty,dive,required"`

	// Telemetry configures logging, tracing, and metrics.
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// DefaultSettings returns settings suitable for local use.
func DefaultSettings() *Settings {
	return &Settings{
		WorkspaceRoot: "build",
		StorePath:     filepath.Join("build", "inferline.db"),
		Telemetry:     telemetry.DefaultConfig(),
	}
}

// Validate checks the settings for completeness.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return s.Telemetry.Validate()
}

// LoadSettings reads a settings file and layers it over the defaults.
// The format is chosen by extension: .cue, .yaml/.yml, or .json.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		val := cuecontext.New().CompileString(string(data))
		if err := val.Err(); err != nil {
			return nil, fmt.Errorf("compile settings: %w", err)
		}
		if err := val.Decode(settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	case ".json":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported settings format: %s", filepath.Ext(path))
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
