package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/extract"
	"github.com/sokinpui/pair/internal/resolve"
	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/model"
)

type fakeSender struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.prompts = append(f.prompts, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakePresenter struct {
	mu       sync.Mutex
	renders  [][]suggest.Entry
	notices  []string
	levels   []model.Level
	previews int
}

func (p *fakePresenter) RenderSuggestions(entries []suggest.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders = append(p.renders, entries)
}

func (p *fakePresenter) Notify(level model.Level, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, level)
	p.notices = append(p.notices, message)
}

func (p *fakePresenter) ShowPreview() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews++
}

const luaReply = "Here's a fix:\n```lua\nlocal function add(a, b)\n  return a + b\nend\n```"

func newSession(t *testing.T, lines []string, opts Options) (*Session, *editor.Buffer, *fakeSender, *fakePresenter) {
	t.Helper()
	doc := editor.NewBuffer("src/add.lua", "lua", lines)
	sender := &fakeSender{}
	presenter := &fakePresenter{}
	s := New(doc, sender, presenter, nil, opts)
	t.Cleanup(s.Close)
	return s, doc, sender, presenter
}

func TestDoubleSendIsBusy(t *testing.T) {
	ctx := context.Background()
	s, _, sender, presenter := newSession(t, []string{"x"}, DefaultOptions())

	require.NoError(t, s.SendMessage(ctx, "first"))
	err := s.SendMessage(ctx, "second")

	require.ErrorIs(t, err, ErrBusy)
	assert.Len(t, s.History(), 1)
	assert.Len(t, sender.prompts, 1)
	assert.True(t, s.Processing())
	assert.Equal(t, model.LevelWarn, presenter.levels[len(presenter.levels)-1])
}

func TestReplyReleasesLatch(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"x"}, DefaultOptions())

	require.NoError(t, s.SendMessage(ctx, "first"))
	s.HandleReply(ctx, "no code here")
	require.NoError(t, s.SendMessage(ctx, "second"))

	assert.Len(t, s.History(), 3)
}

func TestSendFailureReleasesLatch(t *testing.T) {
	ctx := context.Background()
	s, _, sender, presenter := newSession(t, []string{"x"}, DefaultOptions())
	sender.err = errors.New("pipe closed")

	err := s.SendMessage(ctx, "hello")

	require.Error(t, err)
	assert.False(t, s.Processing())
	assert.Contains(t, presenter.notices[0], "pipe closed")
}

func TestHandleReplyEndToEnd(t *testing.T) {
	ctx := context.Background()
	s, _, _, presenter := newSession(t, []string{"-- math", "local function add(a, b)", "  return a - b", "end"}, DefaultOptions())
	require.NoError(t, s.SendMessage(ctx, "fix add"))

	found := s.HandleReply(ctx, luaReply)

	require.Len(t, found, 1)
	assert.Equal(t, "Here's a fix:", found[0].Description)
	assert.Equal(t, "lua", found[0].Language)
	assert.Len(t, found[0].Lines, 3)
	require.NotNil(t, found[0].Range)
	assert.Equal(t, model.Range{Start: 2, End: 4}, *found[0].Range)

	assert.False(t, s.Processing())
	assert.Equal(t, 1, s.Pending())
	require.Len(t, presenter.renders, 1)
	assert.True(t, presenter.renders[0][0].Current)
	assert.Equal(t, 0, presenter.previews, "reply mentions no trigger word")

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
}

func TestDuplicateReplyIgnored(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"x"}, DefaultOptions())
	require.NoError(t, s.SendMessage(ctx, "one"))
	s.HandleReply(ctx, luaReply)
	require.NoError(t, s.SendMessage(ctx, "two"))

	found := s.HandleReply(ctx, luaReply)

	assert.Empty(t, found)
	assert.Equal(t, 1, s.Pending())
	assert.Len(t, s.History(), 3)
	assert.False(t, s.Processing())
}

func TestLanguageInheritedFromContext(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"print(1)"}, DefaultOptions())
	_, err := s.UpdateContext(ctx)
	require.NoError(t, err)

	found := s.HandleReply(ctx, "Try:\n```\nprint(2)\n```")

	require.Len(t, found, 1)
	assert.Equal(t, "lua", found[0].Language)
	assert.Equal(t, "Try:", found[0].Description)
}

func TestPreviewTrigger(t *testing.T) {
	ctx := context.Background()
	s, _, _, presenter := newSession(t, []string{"x"}, DefaultOptions())

	s.HandleReply(ctx, "My suggestion:\n```\ny\n```")
	assert.Equal(t, 1, presenter.previews)

	off := DefaultOptions()
	off.AutoPreview = false
	s2, _, _, presenter2 := newSession(t, []string{"x"}, off)
	s2.HandleReply(ctx, "My suggestion:\n```\ny\n```")
	assert.Equal(t, 0, presenter2.previews)
}

func TestEnrichmentWindow(t *testing.T) {
	ctx := context.Background()
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	opts := DefaultOptions()
	opts.ContextLines = 10
	s, doc, sender, _ := newSession(t, lines, opts)
	doc.SetCaret(25)

	require.NoError(t, s.SendMessage(ctx, "explain"))

	prompt := sender.last()
	assert.True(t, strings.HasPrefix(prompt, "[File: src/add.lua | Language: lua]\n"))
	assert.Contains(t, prompt, "Context (lines 20-29):")
	assert.Contains(t, prompt, "line 20\n")
	assert.Contains(t, prompt, "line 29\n")
	assert.NotContains(t, prompt, "line 30\n")
	assert.True(t, strings.HasSuffix(prompt, "\n\nexplain"))
}

func TestEnrichmentSmallDocument(t *testing.T) {
	ctx := context.Background()
	s, _, sender, _ := newSession(t, []string{"local json = require('json')", "return json"}, DefaultOptions())
	_, err := s.UpdateContext(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SendMessage(ctx, "hi"))
	first := sender.last()
	assert.Contains(t, first, "[File: add.lua | Language: lua]")
	assert.Contains(t, first, "Imports: json")
	assert.Contains(t, first, "Content:\n```lua\nlocal json")
	assert.NotContains(t, first, "Context (lines")

	s.HandleReply(ctx, "ok")
	require.NoError(t, s.SendMessage(ctx, "again"))
	assert.NotContains(t, sender.last(), "Content:", "context goes out once per update")
}

func TestWindow(t *testing.T) {
	tests := []struct {
		caret, total, size int
		start, end         int
	}{
		{1, 100, 20, 1, 20},
		{50, 100, 20, 40, 59},
		{100, 100, 20, 81, 100},
		{3, 5, 20, 1, 5},
	}
	for _, tt := range tests {
		start, end := window(tt.caret, tt.total, tt.size)
		assert.Equal(t, []int{tt.start, tt.end}, []int{start, end}, "caret %d", tt.caret)
	}
}

func TestUpdateContextTrimsHistory(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.MaxHistory = 3
	s, _, _, _ := newSession(t, []string{"x"}, opts)

	for i := 0; i < 5; i++ {
		_, err := s.UpdateContext(ctx)
		require.NoError(t, err)
	}

	history := s.History()
	assert.Len(t, history, 3)
	for _, m := range history {
		assert.Equal(t, model.RoleContext, m.Role)
	}
	dc, ok := s.Context()
	require.True(t, ok)
	assert.Equal(t, "add.lua", dc.Filename)
}

func TestUpdateContextIgnoresLatch(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"x"}, DefaultOptions())
	require.NoError(t, s.SendMessage(ctx, "hi"))

	_, err := s.UpdateContext(ctx)

	require.NoError(t, err)
	assert.Len(t, s.History(), 2)
	assert.True(t, s.Processing())
}

func TestHandleErrorAndClosedReleaseLatch(t *testing.T) {
	ctx := context.Background()
	s, _, _, presenter := newSession(t, []string{"x"}, DefaultOptions())

	require.NoError(t, s.SendMessage(ctx, "a"))
	s.HandleError(ctx, errors.New("boom"))
	assert.False(t, s.Processing())

	require.NoError(t, s.SendMessage(ctx, "b"))
	s.HandleClosed(ctx, 2)
	assert.False(t, s.Processing())
	assert.Contains(t, presenter.notices, "Assistant exited with code 2")
}

func TestApplyThroughSession(t *testing.T) {
	ctx := context.Background()
	s, doc, _, presenter := newSession(t, []string{"a", "b", "foo(x)", "c"}, DefaultOptions())
	s.HandleReply(ctx, "Change foo:\n```\nfoo(x)\n  return x+1\n```\nAlso:\n```\nzzz\n```")
	require.Equal(t, 2, s.Pending())

	cur, target, err := s.Target(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Change foo:", cur.Description)
	assert.Equal(t, model.Range{Start: 3, End: 4}, target)

	require.NoError(t, s.ApplyCurrent(ctx))
	lines, _ := doc.Lines(ctx)
	assert.Equal(t, []string{"a", "b", "foo(x)", "  return x+1"}, lines)

	summary := s.RejectAll()
	assert.Equal(t, []string{"Also:"}, summary.Rejected)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, "Rejected 1 suggestion(s)", presenter.notices[len(presenter.notices)-1])
}

func TestApplyAllSummary(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"a", "b"}, Options{Policy: resolve.AtCreation})
	s.HandleReply(ctx, "One:\n```\na1\n```\nTwo:\n```\nb1\n```")

	summary, applied, err := s.ApplyAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"One:", "Two:"}, summary.Applied)
	assert.Empty(t, summary.Failed)
	require.Len(t, applied, 2)
	assert.Equal(t, []string{"a1"}, applied[0].Lines)
	assert.NotNil(t, applied[0].Range)
}

func TestCloseStopsOnlyOwnExtractor(t *testing.T) {
	own := New(nil, nil, nil, nil, DefaultOptions())
	assert.True(t, own.ownsExtractor)
	own.Close()
	own.Close()
	assert.False(t, own.ownsExtractor)

	ex := extract.New()
	defer ex.Close()
	shared := New(nil, nil, nil, ex, DefaultOptions())
	assert.False(t, shared.ownsExtractor)
	shared.Close()
	assert.Equal(t, "a.go", ex.Extract("a.go", "package a", "go").Filename)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newSession(t, []string{"x"}, DefaultOptions())
	id := s.ID()
	s.HandleReply(ctx, luaReply)
	_, _ = s.UpdateContext(ctx)

	s.Clear()

	assert.Empty(t, s.History())
	assert.Equal(t, 0, s.Pending())
	_, ok := s.Context()
	assert.False(t, ok)
	assert.Equal(t, id, s.ID())
	assert.Len(t, s.HandleReply(ctx, luaReply), 1, "last reply forgotten")
}
