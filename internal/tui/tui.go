package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/internal/patcher"
	"github.com/sokinpui/pair/internal/session"
	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/model"
	"github.com/sokinpui/pair/pair"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))  // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))             // Green
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))            // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))            // Red
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")) // Pink
	currentStyle = lipgloss.NewStyle().Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	previewStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

const (
	maxNotices  = 3
	inputHeight = 3
	helpText    = "enter send · ^n/^p move · ^a apply · ^x reject · ^o apply all · ^k reject all · ^t preview · ^y yank · ^e export · ^u context · esc quit"
)

// --- Messages ---

// ReplyMsg carries an assistant reply from the transport.
type ReplyMsg string

// ErrorMsg carries a transport failure.
type ErrorMsg struct{ Err error }

// ClosedMsg reports the assistant process exit code.
type ClosedMsg struct{ Code int }

type fileChangedMsg struct{}

// Backend is what the chat view needs besides the session.
type Backend interface {
	Preview(ctx context.Context, sess *session.Session) (string, error)
	ExportHistory(sess *session.Session) (string, error)
	ApplyCurrent(ctx context.Context, sess *session.Session) error
	ApplyAll(ctx context.Context, sess *session.Session) (model.Summary, error)
	Yank(text string) error
}

type notice struct {
	level model.Level
	text  string
}

// board is the session presenter. The session writes into it while Update
// runs, and View reads it back.
type board struct {
	entries          []suggest.Entry
	notices          []notice
	previewRequested bool
}

func (b *board) RenderSuggestions(entries []suggest.Entry) { b.entries = entries }

func (b *board) Notify(level model.Level, message string) {
	b.notices = append(b.notices, notice{level: level, text: message})
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
}

func (b *board) ShowPreview() { b.previewRequested = true }

// --- Model ---
type Model struct {
	ctx     context.Context
	sess    *session.Session
	backend Backend
	board   *board

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	preview      string
	previewStats string
	showPreview  bool
	width        int
	height       int
}

// NewBoard returns the presenter a chat Model renders from.
func NewBoard() session.Presenter { return &board{} }

// New builds the chat model. presenter must come from NewBoard and be the
// one sess was created with.
func New(ctx context.Context, sess *session.Session, presenter session.Presenter, backend Backend) Model {
	b, ok := presenter.(*board)
	if !ok {
		b = &board{}
	}

	ta := textarea.New()
	ta.Placeholder = "Ask the assistant..."
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:      ctx,
		sess:     sess,
		backend:  backend,
		board:    b,
		input:    ta,
		viewport: viewport.New(80, 10),
		spinner:  s,
		width:    80,
		height:   24,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ReplyMsg:
		m.sess.HandleReply(m.ctx, string(msg))
		if m.board.previewRequested {
			m.board.previewRequested = false
			m.showPreview = true
		}
		m.refresh()
		return m, nil

	case ErrorMsg:
		m.sess.HandleError(m.ctx, msg.Err)
		m.refresh()
		return m, nil

	case ClosedMsg:
		m.sess.HandleClosed(m.ctx, msg.Code)
		m.refresh()
		return m, nil

	case fileChangedMsg:
		if dc, err := m.sess.UpdateContext(m.ctx); err != nil {
			m.board.Notify(model.LevelError, fmt.Sprintf("Failed to reload context: %v", err))
		} else {
			m.board.Notify(model.LevelInfo, fmt.Sprintf("Reloaded %s", dc.Filename))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if err := m.sess.SendMessage(m.ctx, text); err == nil {
			m.input.Reset()
		}
		m.refresh()
		return m, nil

	case "ctrl+n":
		_ = m.sess.Next()
	case "ctrl+p":
		_ = m.sess.Prev()
	case "ctrl+a":
		m.applyCurrent()
	case "ctrl+x":
		_ = m.sess.RejectCurrent()
	case "ctrl+o":
		m.applyAll()
	case "ctrl+k":
		m.sess.RejectAll()
	case "ctrl+l":
		m.sess.Clear()
		m.board.notices = nil
	case "ctrl+y":
		m.yank()
	case "ctrl+t":
		m.showPreview = !m.showPreview
	case "ctrl+e":
		path, err := m.backend.ExportHistory(m.sess)
		if err != nil {
			m.board.Notify(model.LevelError, fmt.Sprintf("Export failed: %v", err))
		} else {
			m.board.Notify(model.LevelSuccess, fmt.Sprintf("Exported to %s", path))
		}
	case "ctrl+u":
		if _, err := m.sess.UpdateContext(m.ctx); err != nil {
			m.board.Notify(model.LevelError, fmt.Sprintf("Failed to update context: %v", err))
		} else {
			m.board.Notify(model.LevelInfo, "Context updated")
		}
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m *Model) applyCurrent() {
	if m.sess.Document() == nil {
		m.board.Notify(model.LevelWarn, "No document open")
		return
	}
	if err := m.backend.ApplyCurrent(m.ctx, m.sess); errors.Is(err, pair.ErrSaveFailed) {
		m.board.Notify(model.LevelError, err.Error())
	}
}

func (m *Model) applyAll() {
	if m.sess.Document() == nil {
		m.board.Notify(model.LevelWarn, "No document open")
		return
	}
	if _, err := m.backend.ApplyAll(m.ctx, m.sess); errors.Is(err, pair.ErrSaveFailed) {
		m.board.Notify(model.LevelError, err.Error())
	}
}

func (m *Model) yank() {
	cur, ok := m.sess.Current()
	if !ok {
		m.board.Notify(model.LevelInfo, "No suggestions")
		return
	}
	if err := m.backend.Yank(strings.Join(cur.Lines, "\n")); err != nil {
		m.board.Notify(model.LevelError, fmt.Sprintf("Failed to copy: %v", err))
		return
	}
	m.board.Notify(model.LevelSuccess, fmt.Sprintf("Copied: %s", cur.Description))
}

// previewStats summarizes a diff preview as "+N -M", or "" when the
// preview is not a diff.
func previewStats(preview string) string {
	st, err := patcher.CountText(preview)
	if err != nil || st.Added+st.Removed == 0 {
		return ""
	}
	return st.String()
}

// refresh recomputes the preview and the transcript viewport.
func (m *Model) refresh() {
	m.preview = ""
	m.previewStats = ""
	if m.showPreview && len(m.board.entries) > 0 {
		out, err := m.backend.Preview(m.ctx, m.sess)
		if err != nil {
			pslog.Ctx(m.ctx).Debug("preview unavailable", "err", err)
		} else {
			m.preview = out
			m.previewStats = previewStats(out)
		}
	}

	fixed := 2 + inputHeight + len(m.board.notices) + m.suggestionLines()
	if m.preview != "" {
		fixed += strings.Count(m.preview, "\n") + 2
	}
	if m.previewStats != "" {
		fixed++
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-fixed, 3)
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) suggestionLines() int {
	if len(m.board.entries) == 0 {
		return 0
	}
	return len(m.board.entries) + 1
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderSuggestions())
	if m.previewStats != "" {
		b.WriteString(faintStyle.Render("Preview " + m.previewStats))
		b.WriteString("\n")
	}
	if m.preview != "" {
		b.WriteString(previewStyle.Render(strings.TrimRight(m.preview, "\n")))
		b.WriteString("\n")
	}
	b.WriteString(m.renderNotices())
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(faintStyle.Render(helpText))
	return b.String()
}

func (m *Model) renderHeader() string {
	title := "pair"
	if doc := m.sess.Document(); doc != nil {
		title = fmt.Sprintf("pair · %s", filepath.Base(doc.Name()))
	}
	header := headerStyle.Render(title)
	if m.sess.Processing() {
		header += " " + m.spinner.View() + faintStyle.Render(" waiting for reply...")
	}
	return header
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for _, msg := range m.sess.History() {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(msg.Content)
		case model.RoleAssistant:
			b.WriteString(headerStyle.Render("Assistant: "))
			b.WriteString(msg.Content)
		default:
			b.WriteString(faintStyle.Render("· " + msg.Content))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderSuggestions() string {
	if len(m.board.entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Suggestions (%d)", len(m.board.entries))))
	b.WriteString("\n")
	for _, e := range m.board.entries {
		line := fmt.Sprintf("%d. %s", e.Index, e.Description)
		if e.Range != nil {
			line += faintStyle.Render(fmt.Sprintf(" (lines %d-%d)", e.Range.Start, e.Range.End))
		}
		if e.Current {
			b.WriteString(currentStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderNotices() string {
	var b strings.Builder
	for _, n := range m.board.notices {
		b.WriteString(levelStyle(n.level).Render(n.text))
		b.WriteString("\n")
	}
	return b.String()
}

func levelStyle(level model.Level) lipgloss.Style {
	switch level {
	case model.LevelSuccess:
		return successStyle
	case model.LevelWarn:
		return warnStyle
	case model.LevelError:
		return errorStyle
	default:
		return faintStyle
	}
}
