package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/extract"
	"github.com/sokinpui/pair/internal/session"
	"github.com/sokinpui/pair/model"
)

const fence = "```"

type fakeBackend struct {
	previews int
	applied  int
	yanked   []string
	exported int
}

func (f *fakeBackend) Preview(ctx context.Context, sess *session.Session) (string, error) {
	f.previews++
	cur, _, err := sess.Target(ctx)
	if err != nil {
		return "", err
	}
	return "preview of " + cur.Description + "\n", nil
}

func (f *fakeBackend) ExportHistory(sess *session.Session) (string, error) {
	f.exported++
	return "/tmp/" + sess.ID() + ".md", nil
}

func (f *fakeBackend) ApplyCurrent(ctx context.Context, sess *session.Session) error {
	if err := sess.ApplyCurrent(ctx); err != nil {
		return err
	}
	f.applied++
	return nil
}

func (f *fakeBackend) ApplyAll(ctx context.Context, sess *session.Session) (model.Summary, error) {
	summary, _, err := sess.ApplyAll(ctx)
	f.applied += len(summary.Applied)
	return summary, err
}

func (f *fakeBackend) Yank(text string) error {
	f.yanked = append(f.yanked, text)
	return nil
}

type fakeSender struct{ sent []string }

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func newTestModel(t *testing.T) (Model, *editor.Buffer, *fakeSender, *fakeBackend) {
	t.Helper()
	doc := editor.NewBuffer("main.lua", "lua", []string{
		"local x = 1",
		"local function add(a, b)",
		"  return a - b",
		"end",
	})
	ex := extract.New()
	t.Cleanup(ex.Close)

	sender := &fakeSender{}
	backend := &fakeBackend{}
	presenter := NewBoard()
	sess := session.New(doc, sender, presenter, ex, session.DefaultOptions())
	return New(context.Background(), sess, presenter, backend), doc, sender, backend
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func suggestionReply() string {
	return strings.Join([]string{
		"Here's a suggestion:",
		fence + "lua",
		"local function add(a, b)",
		"  return a + b",
		"end",
		fence,
	}, "\n")
}

func TestSendAndReply(t *testing.T) {
	m, _, sender, backend := newTestModel(t)

	m.input.SetValue("fix add please")
	m = update(t, m, key(tea.KeyEnter))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "fix add please")
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "waiting for reply")

	m = update(t, m, ReplyMsg(suggestionReply()))
	require.Len(t, m.board.entries, 1)
	assert.True(t, m.showPreview)
	assert.Equal(t, 1, backend.previews)
	assert.Contains(t, m.View(), "preview of Here's a suggestion:")
	assert.Contains(t, m.View(), "> 1. Here's a suggestion:")
}

func TestBusySendKeepsInput(t *testing.T) {
	m, _, sender, _ := newTestModel(t)

	m.input.SetValue("first")
	m = update(t, m, key(tea.KeyEnter))
	m.input.SetValue("second")
	m = update(t, m, key(tea.KeyEnter))

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, "second", m.input.Value())
	require.NotEmpty(t, m.board.notices)
	last := m.board.notices[len(m.board.notices)-1]
	assert.Equal(t, model.LevelWarn, last.level)
}

func TestApplyCurrent(t *testing.T) {
	m, doc, _, backend := newTestModel(t)
	m = update(t, m, ReplyMsg(suggestionReply()))

	m = update(t, m, key(tea.KeyCtrlA))

	lines, err := doc.Lines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "  return a + b", lines[2])
	assert.Empty(t, m.board.entries)
	assert.Equal(t, 1, backend.applied)
}

func TestApplyAll(t *testing.T) {
	m, _, _, backend := newTestModel(t)
	reply := suggestionReply() + "\nAlso:\n" + fence + "lua\nlocal x = 2\n" + fence
	m = update(t, m, ReplyMsg(reply))
	require.Len(t, m.board.entries, 2)

	m = update(t, m, key(tea.KeyCtrlO))

	assert.Empty(t, m.board.entries)
	assert.Equal(t, 2, backend.applied)
}

func TestRejectAndNavigate(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	reply := suggestionReply() + "\nAlso:\n" + fence + "lua\nlocal x = 2\n" + fence
	m = update(t, m, ReplyMsg(reply))

	m = update(t, m, key(tea.KeyCtrlN))
	assert.True(t, m.board.entries[1].Current)
	m = update(t, m, key(tea.KeyCtrlX))
	require.Len(t, m.board.entries, 1)
	assert.True(t, m.board.entries[0].Current)

	m = update(t, m, key(tea.KeyCtrlK))
	assert.Empty(t, m.board.entries)
}

func TestYankAndExport(t *testing.T) {
	m, _, _, backend := newTestModel(t)

	m = update(t, m, key(tea.KeyCtrlY))
	assert.Empty(t, backend.yanked)
	assert.Equal(t, "No suggestions", m.board.notices[len(m.board.notices)-1].text)

	m = update(t, m, ReplyMsg(suggestionReply()))
	m = update(t, m, key(tea.KeyCtrlY))
	require.Len(t, backend.yanked, 1)
	assert.Equal(t, "local function add(a, b)\n  return a + b\nend", backend.yanked[0])

	m = update(t, m, key(tea.KeyCtrlE))
	assert.Equal(t, 1, backend.exported)
	assert.Contains(t, m.board.notices[len(m.board.notices)-1].text, "Exported to")
}

func TestTransportEvents(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m = update(t, m, ErrorMsg{Err: errors.New("boom")})
	assert.Contains(t, m.board.notices[len(m.board.notices)-1].text, "boom")

	m = update(t, m, ClosedMsg{Code: 2})
	assert.Contains(t, m.board.notices[len(m.board.notices)-1].text, "code 2")
}

func TestFileChangedUpdatesContext(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	before := len(m.sess.History())

	m = update(t, m, fileChangedMsg{})

	assert.Len(t, m.sess.History(), before+1)
	assert.Equal(t, "Reloaded main.lua", m.board.notices[len(m.board.notices)-1].text)
}

func TestNoticesAreCapped(t *testing.T) {
	b := &board{}
	for i := 0; i < 10; i++ {
		b.Notify(model.LevelInfo, "n")
	}
	assert.Len(t, b.notices, maxNotices)
}

func TestQuit(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	_, cmd := m.Update(key(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestPreviewStatsHeader(t *testing.T) {
	diff := "--- a/f\n+++ b/f\n@@ -1,2 +1 @@\n-a\n-b\n+c\n"
	assert.Equal(t, "+1 -2", previewStats(diff))
	assert.Empty(t, previewStats("preview of Fix:\n"))
}
