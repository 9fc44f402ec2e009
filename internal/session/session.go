// Package session runs one conversation with the assistant: it enriches
// outgoing messages with document context, holds the single in-flight
// request latch and turns replies into pending suggestions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/extract"
	"github.com/sokinpui/pair/internal/parser"
	"github.com/sokinpui/pair/internal/resolve"
	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/model"
)

// ErrBusy is returned by SendMessage while a reply is outstanding.
var ErrBusy = errors.New("session busy")

// Presenter renders session state for the user.
type Presenter interface {
	RenderSuggestions(entries []suggest.Entry)
	Notify(level model.Level, message string)
	ShowPreview()
}

// Sender dispatches an enriched prompt. transport.Transport satisfies it.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Options tune enrichment, history and range resolution.
type Options struct {
	ContextLines int
	MaxHistory   int
	AutoPreview  bool
	Policy       resolve.Policy
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		ContextLines: 20,
		MaxHistory:   100,
		AutoPreview:  true,
		Policy:       resolve.AtApply,
	}
}

var previewTriggers = []string{"suggestion", "change", "modify"}

// Session is safe for concurrent use; transport callbacks may arrive on
// any goroutine.
type Session struct {
	mu        sync.Mutex
	id        string
	opts      Options
	doc       editor.Document
	sender    Sender
	presenter Presenter
	extractor *extract.Extractor
	store     *suggest.Store

	history        []model.Message
	current        *model.DocumentContext
	pendingContext bool
	processing     bool
	lastReply      string
	now            func() time.Time
	ownsExtractor  bool
}

// New creates an idle Session with a fresh id. doc may be nil, in which
// case messages are sent without enrichment and ranges resolve to line 1.
// A non-nil extractor stays owned by the caller; a nil one is created here
// and stopped by Close.
func New(doc editor.Document, sender Sender, presenter Presenter, extractor *extract.Extractor, opts Options) *Session {
	def := DefaultOptions()
	if opts.ContextLines <= 0 {
		opts.ContextLines = def.ContextLines
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = def.MaxHistory
	}
	if !opts.Policy.Valid() {
		opts.Policy = def.Policy
	}
	owns := extractor == nil
	if owns {
		extractor = extract.New()
	}
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Session{
		id:        uuid.NewString(),
		opts:      opts,
		doc:       doc,
		sender:    sender,
		presenter: presenter,
		extractor: extractor,
		store:     suggest.New(opts.Policy, presenter),
		now:       time.Now,

		ownsExtractor: owns,
	}
}

// Close stops the extractor the session created for itself. It does not
// close the sender.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsExtractor {
		s.extractor.Close()
		s.ownsExtractor = false
	}
}

// ID is stable for the lifetime of the session.
func (s *Session) ID() string { return s.id }

// Document returns the bound document, possibly nil.
func (s *Session) Document() editor.Document { return s.doc }

// SetSender binds the transport. It is separate from New because a
// transport's callbacks usually need the session itself.
func (s *Session) SetSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// Processing reports whether a reply is outstanding.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// History returns a copy of the conversation so far.
func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.history...)
}

// SetHistory replaces the history, typically with a resumed transcript.
func (s *Session) SetHistory(history []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]model.Message(nil), history...)
	s.trimLocked()
}

// Context returns the current document snapshot.
func (s *Session) Context() (model.DocumentContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.DocumentContext{}, false
	}
	return *s.current, true
}

// SendMessage records text, enriches it with document context and hands it
// to the sender. It returns ErrBusy without touching history while a
// previous reply is outstanding.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	log := pslog.Ctx(ctx).With("session", s.id)

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		s.presenter.Notify(model.LevelWarn, "Still waiting for the previous reply")
		log.Warn("session send rejected", "reason", "busy")
		return ErrBusy
	}
	if s.sender == nil {
		s.mu.Unlock()
		return errors.New("session has no transport")
	}
	s.history = append(s.history, model.Message{Role: model.RoleUser, Content: text, Timestamp: s.now()})
	s.processing = true
	prompt := s.enrichLocked(ctx, text)
	sender := s.sender
	s.mu.Unlock()

	log.Info("session send", "chars", len(text), "prompt_chars", len(prompt))
	if err := sender.Send(ctx, prompt); err != nil {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
		s.presenter.Notify(model.LevelError, fmt.Sprintf("Failed to send message: %v", err))
		log.Error("session send failed", "err", err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *Session) enrichLocked(ctx context.Context, text string) string {
	if s.doc == nil {
		return text
	}
	name, language := s.doc.Name(), s.doc.Language()
	var imports []string
	if s.current != nil {
		name, language = s.current.Filename, s.current.Language
		imports = s.current.Imports
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[File: %s | Language: %s]\n", name, orUnknown(language))
	if len(imports) > 0 {
		fmt.Fprintf(&b, "Imports: %s\n", strings.Join(imports, ", "))
	}

	lines, err := s.doc.Lines(ctx)
	if err != nil {
		pslog.Ctx(ctx).Warn("session context read failed", "err", err)
		lines = nil
	}
	switch {
	case len(lines) > s.opts.ContextLines:
		caret, err := s.doc.CaretLine(ctx)
		if err != nil {
			caret = 1
		}
		start, end := window(caret, len(lines), s.opts.ContextLines)
		fmt.Fprintf(&b, "Context (lines %d-%d):\n```%s\n%s\n```\n", start, end, language, strings.Join(lines[start-1:end], "\n"))
	case s.pendingContext && len(lines) > 0:
		fmt.Fprintf(&b, "Content:\n```%s\n%s\n```\n", language, strings.Join(lines, "\n"))
	}
	s.pendingContext = false

	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

// window returns the 1-based inclusive span of size lines centred on caret
// within a document of total lines.
func window(caret, total, size int) (int, int) {
	if size >= total {
		return 1, total
	}
	start := caret - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > total {
		end = total
		start = end - size + 1
	}
	return start, end
}

func orUnknown(language string) string {
	if language == "" {
		return "unknown"
	}
	return language
}

// HandleReply releases the latch and turns reply into suggestions. A reply
// identical to the previous one is ignored apart from releasing the latch.
func (s *Session) HandleReply(ctx context.Context, reply string) []model.Suggestion {
	log := pslog.Ctx(ctx).With("session", s.id)

	s.mu.Lock()
	s.processing = false
	if reply == s.lastReply {
		s.mu.Unlock()
		log.Debug("session reply duplicate", "chars", len(reply))
		return nil
	}
	s.lastReply = reply
	s.history = append(s.history, model.Message{Role: model.RoleAssistant, Content: reply, Timestamp: s.now()})

	found := parser.Parse(reply)
	found = s.resolveLocked(ctx, found)
	s.store.Append(found...)
	entries := s.store.View()
	s.mu.Unlock()

	log.Info("session reply", "chars", len(reply), "suggestions", len(found))
	if len(found) > 0 {
		s.presenter.RenderSuggestions(entries)
	}
	if s.opts.AutoPreview && len(found) > 0 && wantsPreview(reply) {
		s.presenter.ShowPreview()
	}
	return found
}

func (s *Session) resolveLocked(ctx context.Context, found []model.Suggestion) []model.Suggestion {
	var (
		lines []string
		caret = 1
	)
	if s.doc != nil {
		var err error
		if lines, err = s.doc.Lines(ctx); err != nil {
			pslog.Ctx(ctx).Warn("session resolve read failed", "err", err)
		}
		if c, err := s.doc.CaretLine(ctx); err == nil {
			caret = c
		}
	}
	language := ""
	if s.current != nil {
		language = s.current.Language
	} else if s.doc != nil {
		language = s.doc.Language()
	}

	out := make([]model.Suggestion, len(found))
	for i, sg := range found {
		if sg.Language == "" {
			sg.Language = language
		}
		out[i] = resolve.Suggestion(sg, lines, caret)
	}
	return out
}

func wantsPreview(reply string) bool {
	lower := strings.ToLower(reply)
	for _, t := range previewTriggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// HandleError releases the latch and surfaces a transport failure.
func (s *Session) HandleError(ctx context.Context, err error) {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
	pslog.Ctx(ctx).Error("session transport error", "session", s.id, "err", err)
	s.presenter.Notify(model.LevelError, fmt.Sprintf("Assistant error: %v", err))
}

// HandleClosed releases the latch after the transport process exits.
func (s *Session) HandleClosed(ctx context.Context, code int) {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
	pslog.Ctx(ctx).Info("session transport closed", "session", s.id, "code", code)
	if code != 0 {
		s.presenter.Notify(model.LevelWarn, fmt.Sprintf("Assistant exited with code %d", code))
	}
}

// UpdateContext snapshots the document, records a context message and
// trims the history to the configured maximum.
func (s *Session) UpdateContext(ctx context.Context) (model.DocumentContext, error) {
	if s.doc == nil {
		return model.DocumentContext{}, errors.New("session has no document")
	}
	lines, err := s.doc.Lines(ctx)
	if err != nil {
		return model.DocumentContext{}, fmt.Errorf("failed to read document: %w", err)
	}
	dc := s.extractor.ExtractLines(s.doc.Name(), lines, s.doc.Language())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &dc
	s.pendingContext = true
	s.history = append(s.history, model.Message{
		Role:      model.RoleContext,
		Content:   fmt.Sprintf("%s (%s, %d lines)", dc.Filename, orUnknown(dc.Language), dc.LineCount),
		Timestamp: s.now(),
	})
	s.trimLocked()
	pslog.Ctx(ctx).Debug("session context", "session", s.id, "file", dc.Filename, "lines", dc.LineCount)
	return dc, nil
}

func (s *Session) trimLocked() {
	if over := len(s.history) - s.opts.MaxHistory; over > 0 {
		s.history = append([]model.Message(nil), s.history[over:]...)
	}
}

// Clear forgets history, context and pending suggestions. An outstanding
// reply is still accepted when it arrives.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.current = nil
	s.pendingContext = false
	s.lastReply = ""
	s.store.Clear()
}

// Entries returns the render view of pending suggestions.
func (s *Session) Entries() []suggest.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.View()
}

// Current returns the suggestion under the cursor.
func (s *Session) Current() (model.Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Current()
}

// Pending returns how many suggestions wait for a decision.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Target computes the range the current suggestion would replace.
func (s *Session) Target(ctx context.Context) (model.Suggestion, model.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.store.Current()
	if !ok {
		return model.Suggestion{}, model.Range{}, suggest.ErrEmpty
	}
	if s.doc == nil {
		return cur, resolve.Fallback(1), nil
	}
	r, err := s.store.Target(ctx, s.doc, cur)
	return cur, r, err
}

// Next moves the cursor to the following suggestion.
func (s *Session) Next() error {
	return s.withStore(func(st *suggest.Store) error { return st.Next() })
}

// Prev moves the cursor to the preceding suggestion.
func (s *Session) Prev() error {
	return s.withStore(func(st *suggest.Store) error { return st.Prev() })
}

// ApplyCurrent writes the current suggestion into the document.
func (s *Session) ApplyCurrent(ctx context.Context) error {
	return s.withStore(func(st *suggest.Store) error {
		if s.doc == nil {
			return errors.New("session has no document")
		}
		applied, err := st.ApplyCurrent(ctx, s.doc)
		if err == nil {
			pslog.Ctx(ctx).Info("suggestion applied", "session", s.id, "description", applied.Description)
		}
		return err
	})
}

// RejectCurrent drops the current suggestion without touching the document.
func (s *Session) RejectCurrent() error {
	return s.withStore(func(st *suggest.Store) error {
		_, err := st.RejectCurrent()
		return err
	})
}

// ApplyAll applies every pending suggestion and reports the outcome. The
// returned suggestions are the ones written, with the ranges they replaced.
func (s *Session) ApplyAll(ctx context.Context) (model.Summary, []model.Suggestion, error) {
	var (
		summary model.Summary
		applied []model.Suggestion
	)
	err := s.withStore(func(st *suggest.Store) error {
		if s.doc == nil {
			return errors.New("session has no document")
		}
		var err error
		applied, err = st.ApplyAll(ctx, s.doc)
		for _, item := range applied {
			summary.Applied = append(summary.Applied, item.Description)
		}
		for _, item := range st.Items() {
			summary.Failed = append(summary.Failed, item.Description)
		}
		return err
	})
	return summary, applied, err
}

// RejectAll drops every pending suggestion and lists what was dropped.
func (s *Session) RejectAll() model.Summary {
	var summary model.Summary
	_ = s.withStore(func(st *suggest.Store) error {
		for _, item := range st.Items() {
			summary.Rejected = append(summary.Rejected, item.Description)
		}
		st.RejectAll()
		return nil
	})
	return summary
}

// ClearSuggestions drops pending suggestions and keeps the conversation.
func (s *Session) ClearSuggestions() {
	_ = s.withStore(func(st *suggest.Store) error {
		st.Clear()
		return nil
	})
}

func (s *Session) withStore(fn func(*suggest.Store) error) error {
	s.mu.Lock()
	err := fn(s.store)
	entries := s.store.View()
	s.mu.Unlock()
	s.presenter.RenderSuggestions(entries)
	return err
}

type nopPresenter struct{}

func (nopPresenter) RenderSuggestions([]suggest.Entry) {}
func (nopPresenter) Notify(model.Level, string)        {}
func (nopPresenter) ShowPreview()                      {}
