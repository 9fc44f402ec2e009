package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// SourceProvider reads an assistant reply from piped stdin or the clipboard
// and writes suggestions back to the clipboard.
type SourceProvider struct {
	stdin     *os.File
	readClip  func() (string, error)
	writeClip func(string) error
}

// New creates a SourceProvider over os.Stdin and the system clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		stdin:     os.Stdin,
		readClip:  clipboard.ReadAll,
		writeClip: clipboard.WriteAll,
	}
}

// Origin names where GetContent will read from.
func (sp *SourceProvider) Origin() string {
	if sp.isPiped() {
		return "stdin"
	}
	return "clipboard"
}

func (sp *SourceProvider) isPiped() bool {
	if sp.stdin == nil {
		return false
	}
	stat, err := sp.stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
// Whitespace-only content reads as empty.
func (sp *SourceProvider) GetContent() (string, error) {
	if sp.isPiped() {
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return blankToEmpty(string(content)), nil
	}

	content, err := sp.readClip()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return blankToEmpty(content), nil
}

// Yank copies text to the clipboard.
func (sp *SourceProvider) Yank(text string) error {
	if err := sp.writeClip(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}

func blankToEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
