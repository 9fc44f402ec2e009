// Package config loads pair's YAML configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration.
type Config struct {
	ContextLines  int             `mapstructure:"context_lines" yaml:"context_lines" validate:"gt=0"`
	MaxHistory    int             `mapstructure:"max_history" yaml:"max_history" validate:"gt=0"`
	ResolvePolicy string          `mapstructure:"resolve_policy" yaml:"resolve_policy" validate:"oneof=creation apply"`
	AutoPreview   bool            `mapstructure:"auto_preview" yaml:"auto_preview"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Transport     TransportConfig `mapstructure:"transport" yaml:"transport"`
	OpenAI        OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
}

// TransportConfig selects and configures the assistant transport.
type TransportConfig struct {
	Kind           string   `mapstructure:"kind" yaml:"kind" validate:"oneof=cli openai"`
	Command        string   `mapstructure:"command" yaml:"command" validate:"required_if=Kind cli"`
	Args           []string `mapstructure:"args" yaml:"args"`
	Mode           string   `mapstructure:"mode" yaml:"mode" validate:"oneof=oneshot interactive"`
	SettleMS       int      `mapstructure:"settle_ms" yaml:"settle_ms" validate:"gt=0"`
	MaxWaitSeconds int      `mapstructure:"max_wait_seconds" yaml:"max_wait_seconds" validate:"gt=0"`
}

// OpenAIConfig configures the chat completion transport.
type OpenAIConfig struct {
	Model        string `mapstructure:"model" yaml:"model"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv    string `mapstructure:"api_key_env" yaml:"api_key_env"`
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ContextLines:  20,
		MaxHistory:    100,
		ResolvePolicy: "apply",
		AutoPreview:   true,
		StateDir:      "",
		Transport: TransportConfig{
			Kind:           "cli",
			Command:        "claude",
			Args:           []string{"-p"},
			Mode:           "oneshot",
			SettleMS:       800,
			MaxWaitSeconds: 120,
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// DefaultConfigPath returns $PAIR_CONFIG, else the XDG config location.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv("PAIR_CONFIG"); p != "" {
		return p, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "pair", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pair", "config.yaml"), nil
}

// APIKey reads the OpenAI key from the configured environment variable.
func (c Config) APIKey() string {
	if c.OpenAI.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.OpenAI.APIKeyEnv)
}
