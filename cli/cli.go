package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sokinpui/pair/internal/config"
)

// Config holds the command-line flag values.
type Config struct {
	ConfigPath   string
	StateDir     string
	File         string
	Nvim         bool
	NvimAddr     string
	Resume       bool
	JSON         bool
	Policy       string
	ContextLines int
	NoPreview    bool
}

// BindGlobal registers the flags every command accepts.
func (c *Config) BindGlobal(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigPath, "config", "c", "", "Path to the config file (default $PAIR_CONFIG or ~/.config/pair/config.yaml).")
	fs.StringVar(&c.StateDir, "state-dir", "", "Directory for exported sessions and the apply journal (default .pair at the git root).")
}

// BindDocument registers the flags selecting the document to work on.
func (c *Config) BindDocument(fs *pflag.FlagSet) {
	fs.StringVarP(&c.File, "file", "f", "", "File to work on.")
	fs.BoolVarP(&c.Nvim, "nvim", "n", false, "Edit the file through Neovim instead of on disk.")
	fs.StringVar(&c.NvimAddr, "server", "", "Neovim server address to connect to (default $NVIM).")
	fs.StringVar(&c.Policy, "resolve", "", "When to resolve target lines: 'creation' or 'apply'.")
	fs.IntVar(&c.ContextLines, "context-lines", 0, "Lines of context around the cursor sent with each message.")
}

// BindChat registers the flags of the interactive session.
func (c *Config) BindChat(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.Resume, "resume", "r", false, "Resume the most recently exported session.")
	fs.BoolVar(&c.NoPreview, "no-preview", false, "Do not open the preview pane automatically.")
}

// BindOutput registers output format flags.
func (c *Config) BindOutput(fs *pflag.FlagSet) {
	fs.BoolVar(&c.JSON, "json", false, "Print machine-readable JSON.")
}

// Validate checks flag combinations.
func (c *Config) Validate() error {
	if c.NvimAddr != "" && !c.Nvim {
		c.Nvim = true
	}
	if c.Policy != "" && c.Policy != "creation" && c.Policy != "apply" {
		return fmt.Errorf("%w: --resolve must be 'creation' or 'apply', got %q", config.ErrInvalid, c.Policy)
	}
	if c.ContextLines < 0 {
		return fmt.Errorf("%w: --context-lines must be positive", config.ErrInvalid)
	}
	return nil
}

// Override applies flag values on top of the loaded configuration.
func (c *Config) Override(cfg *config.Config) {
	if c.StateDir != "" {
		cfg.StateDir = c.StateDir
	}
	if c.Policy != "" {
		cfg.ResolvePolicy = c.Policy
	}
	if c.ContextLines > 0 {
		cfg.ContextLines = c.ContextLines
	}
	if c.NoPreview {
		cfg.AutoPreview = false
	}
}
