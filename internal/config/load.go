package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from path, or DefaultConfigPath when path is
// empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PAIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("context_lines", cfg.ContextLines)
	v.SetDefault("max_history", cfg.MaxHistory)
	v.SetDefault("resolve_policy", cfg.ResolvePolicy)
	v.SetDefault("auto_preview", cfg.AutoPreview)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.command", cfg.Transport.Command)
	v.SetDefault("transport.args", cfg.Transport.Args)
	v.SetDefault("transport.mode", cfg.Transport.Mode)
	v.SetDefault("transport.settle_ms", cfg.Transport.SettleMS)
	v.SetDefault("transport.max_wait_seconds", cfg.Transport.MaxWaitSeconds)
	v.SetDefault("openai.model", cfg.OpenAI.Model)
	v.SetDefault("openai.base_url", cfg.OpenAI.BaseURL)
	v.SetDefault("openai.api_key_env", cfg.OpenAI.APIKeyEnv)
	v.SetDefault("openai.system_prompt", cfg.OpenAI.SystemPrompt)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	if c.Transport.Kind == "openai" && c.OpenAI.Model == "" {
		return fmt.Errorf("%w: openai.model is required for the openai transport", ErrInvalid)
	}
	return nil
}

var keys = map[string]string{
	"ContextLines":   "context_lines",
	"MaxHistory":     "max_history",
	"ResolvePolicy":  "resolve_policy",
	"Kind":           "transport.kind",
	"Command":        "transport.command",
	"Mode":           "transport.mode",
	"SettleMS":       "transport.settle_ms",
	"MaxWaitSeconds": "transport.max_wait_seconds",
	"Model":          "openai.model",
	"BaseURL":        "openai.base_url",
}

func describe(fe validator.FieldError) string {
	key, ok := keys[fe.StructField()]
	if !ok {
		key = fe.Namespace()
	}
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", key, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "required_if":
		return fmt.Sprintf("%s is required", key)
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", key, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}

// Save writes the default configuration to path. It refuses to overwrite
// an existing file unless overwrite is set.
func Save(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
