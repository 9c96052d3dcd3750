package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its configuration.
const DefaultPath = ".tfanygen/config.yaml"

// Config represents the runtime configuration from .tfanygen/config.yaml.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	StateDir  string          `yaml:"state_dir"`
	ModelDir  string          `yaml:"model_dir"`
	Terraform TerraformConfig `yaml:"terraform"`
	Generator GeneratorConfig `yaml:"generator"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	History   HistoryConfig   `yaml:"history"`
}

// TerraformConfig defines how the orchestrator binary is driven.
type TerraformConfig struct {
	Binary           string `yaml:"binary"`
	Version          string `yaml:"version"` // semver constraint, empty disables the check
	Jobs             int    `yaml:"jobs"`
	Refresh          bool   `yaml:"refresh"`
	ForceBackendCopy bool   `yaml:"force_backend_copy"`
}

// GeneratorConfig defines the external generation engine.
type GeneratorConfig struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

// SandboxConfig defines output file restrictions.
type SandboxConfig struct {
	MaxFileSize string `yaml:"max_file_size"`
}

// HistoryConfig defines run history settings.
type HistoryConfig struct {
	MaxEntries int  `yaml:"max_entries"`
	Persist    bool `yaml:"persist"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		StateDir: ".terraform-anygen",
		ModelDir: ".",
		Terraform: TerraformConfig{
			Binary:           "terraform",
			Version:          ">= 0.11.0",
			Jobs:             10,
			Refresh:          true,
			ForceBackendCopy: true,
		},
		Generator: GeneratorConfig{
			Command: []string{"anygen", "produce"},
		},
		Sandbox: SandboxConfig{
			MaxFileSize: "10MB",
		},
		History: HistoryConfig{
			MaxEntries: 1000,
			Persist:    true,
		},
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks values that cannot be caught while parsing.
func (c Config) Validate() error {
	if !logLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir: must not be empty")
	}
	if c.Terraform.Jobs < 1 {
		return fmt.Errorf("terraform.jobs: must be positive, got %d", c.Terraform.Jobs)
	}
	if len(c.Generator.Command) == 0 {
		return fmt.Errorf("generator.command: must not be empty")
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries: must not be negative")
	}
	return nil
}

// LoadConfig reads and parses a runtime config YAML file.
// Returns default config if the file doesn't exist.
// Environment variables referenced as ${VAR_NAME} are interpolated first.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	interpolated := interpolateEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
