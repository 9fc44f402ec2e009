package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sokinpui/pair/internal/fs"
	"github.com/sokinpui/pair/model"
)

const (
	stateDirName    = ".pair"
	journalFileName = "applied.pair"
	SessionsDir     = "sessions"

	// noHash keeps a journal line non-empty when a file could not be hashed.
	noHash = "-"
)

// Operation records one applied suggestion.
type Operation struct {
	Path        string
	Description string
	Start       int
	End         int
	ContentHash string // SHA256 of the file after the apply
}

// HistoryEntry groups the operations of one apply run.
type HistoryEntry struct {
	Timestamp  int64
	Operations []Operation
}

// Manager owns the state directory: the apply journal and exported
// session transcripts.
type Manager struct {
	journalPath string
	journal     []HistoryEntry
	StateDir    string
	now         func() time.Time
}

// findGitRoot finds the root of the git repository.
func findGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// New creates a state manager rooted at dir, or at .pair under the git
// root (falling back to the working directory) when dir is empty.
func New(dir string) (*Manager, error) {
	stateDir := dir
	if stateDir == "" {
		rootDir, err := findGitRoot()
		if err != nil {
			rootDir, err = os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("could not get current working directory: %w", err)
			}
		}
		stateDir = filepath.Join(rootDir, stateDirName)
	}

	if err := os.MkdirAll(filepath.Join(stateDir, SessionsDir), 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		journalPath: filepath.Join(stateDir, journalFileName),
		StateDir:    stateDir,
		now:         time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// load parses the journal: blank-line separated entries, each a timestamp
// line followed by five lines per operation.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		ts, err := strconv.ParseInt(lines[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid journal: could not parse timestamp from '%s': %w", lines[0], err)
		}

		entry := HistoryEntry{Timestamp: ts}
		opLines := lines[1:]
		if len(opLines)%5 != 0 {
			return fmt.Errorf("invalid journal: incomplete operation record at %d", ts)
		}
		for i := 0; i < len(opLines); i += 5 {
			start, err1 := strconv.Atoi(opLines[i+3])
			end, err2 := strconv.Atoi(opLines[i+4])
			if err1 != nil || err2 != nil {
				return fmt.Errorf("invalid journal: bad range for %s", opLines[i])
			}
			hash := opLines[i+1]
			if hash == noHash {
				hash = ""
			}
			entry.Operations = append(entry.Operations, Operation{
				Path:        opLines[i],
				ContentHash: hash,
				Description: opLines[i+2],
				Start:       start,
				End:         end,
			})
		}
		m.journal = append(m.journal, entry)
	}
	return nil
}

func (m *Manager) save() error {
	blocks := make([]string, 0, len(m.journal))
	for _, entry := range m.journal {
		var b strings.Builder
		fmt.Fprintf(&b, "%d", entry.Timestamp)
		for _, op := range entry.Operations {
			hash := op.ContentHash
			if hash == "" {
				hash = noHash
			}
			fmt.Fprintf(&b, "\n%s\n%s\n%s\n%d\n%d", op.Path, hash, oneLine(op.Description), op.Start, op.End)
		}
		blocks = append(blocks, b.String())
	}
	content := strings.Join(blocks, "\n\n") + "\n"
	return fs.WriteLines(m.journalPath, fs.SplitContent(content))
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if strings.TrimSpace(s) == "" {
		return model.DefaultDescription
	}
	return s
}

// Record appends one apply run to the journal.
func (m *Manager) Record(operations []Operation) error {
	if len(operations) == 0 {
		return nil
	}
	m.journal = append(m.journal, HistoryEntry{
		Timestamp:  m.now().UTC().Unix(),
		Operations: operations,
	})
	if err := m.save(); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// Journal returns the recorded apply runs, oldest first.
func (m *Manager) Journal() []HistoryEntry {
	return append([]HistoryEntry(nil), m.journal...)
}

// CreateOperations builds journal records for suggestions applied to path,
// hashing the file as it is now.
func (m *Manager) CreateOperations(path string, applied []model.Suggestion) []Operation {
	hash, err := fs.GetFileSHA256(path)
	if err != nil {
		// A missing hash only weakens later comparison.
		hash = ""
	}
	ops := make([]Operation, 0, len(applied))
	for _, s := range applied {
		op := Operation{Path: path, Description: s.Description, ContentHash: hash}
		if s.Range != nil {
			op.Start, op.End = s.Range.Start, s.Range.End
		}
		ops = append(ops, op)
	}
	return ops
}

// transcript is the JSON form of an exported session.
type transcript struct {
	SessionID string          `json:"session_id"`
	Exported  time.Time       `json:"exported"`
	History   []model.Message `json:"history"`
}

// Export writes the history as JSON, Markdown and HTML under sessions/ and
// returns the Markdown path.
func (m *Manager) Export(sessionID string, history []model.Message) (string, error) {
	now := m.now()
	base := filepath.Join(m.StateDir, SessionsDir, fmt.Sprintf("%d-%s", now.Unix(), sessionID))

	data, err := json.MarshalIndent(transcript{SessionID: sessionID, Exported: now.UTC(), History: history}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(base+".json", data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write session: %w", err)
	}

	md := RenderMarkdown(sessionID, history)
	if err := os.WriteFile(base+".md", []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	html, err := RenderHTML(md)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(base+".html", html, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return base + ".md", nil
}

// LoadHistory returns the history of the most recent export.
func (m *Manager) LoadHistory() ([]model.Message, bool, error) {
	matches, err := filepath.Glob(filepath.Join(m.StateDir, SessionsDir, "*.json"))
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return exportTime(matches[i]) < exportTime(matches[j])
	})

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session: %w", err)
	}
	var t transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %s: %w", filepath.Base(matches[len(matches)-1]), err)
	}
	return t.History, true, nil
}

// exportTime reads the unix prefix of an export file name.
func exportTime(path string) int64 {
	name := filepath.Base(path)
	prefix, _, _ := strings.Cut(name, "-")
	ts, _ := strconv.ParseInt(prefix, 10, 64)
	return ts
}

// RenderMarkdown formats a history as a Markdown transcript.
func RenderMarkdown(sessionID string, history []model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n", sessionID)
	for _, msg := range history {
		switch msg.Role {
		case model.RoleContext:
			fmt.Fprintf(&b, "\n> **context** %s: %s\n", msg.Timestamp.Format(time.RFC3339), msg.Content)
		default:
			fmt.Fprintf(&b, "\n## %s · %s\n\n%s\n", msg.Role, msg.Timestamp.Format(time.RFC3339), msg.Content)
		}
	}
	return b.String()
}

// RenderHTML converts a Markdown transcript to HTML.
func RenderHTML(md string) ([]byte, error) {
	var buf bytes.Buffer
	converter := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := converter.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("failed to render transcript: %w", err)
	}
	return buf.Bytes(), nil
}
