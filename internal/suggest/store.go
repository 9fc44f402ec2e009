// Package suggest holds the ordered set of pending suggestions and the
// cursor the user moves through them.
package suggest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/resolve"
	"github.com/sokinpui/pair/model"
)

// ErrEmpty is returned by navigation and apply/reject on an empty store.
var ErrEmpty = errors.New("no suggestions")

// Notifier receives user-facing notices.
type Notifier interface {
	Notify(level model.Level, message string)
}

type discard struct{}

func (discard) Notify(model.Level, string) {}

// Entry is the render view of one suggestion.
type Entry struct {
	Index       int
	Description string
	Language    string
	Current     bool
	Lines       []string
	Range       *model.Range
}

// Store is an ordered collection of suggestions with a 1-based cursor.
// The cursor stays within [1, Len()] whenever the store is non-empty and is
// 1 when it is empty. A Store is not safe for concurrent use.
type Store struct {
	items  []model.Suggestion
	cursor int
	policy resolve.Policy
	notify Notifier
}

// New creates an empty Store. A nil notifier discards notices; an invalid
// policy falls back to resolve.AtApply.
func New(policy resolve.Policy, notifier Notifier) *Store {
	if !policy.Valid() {
		policy = resolve.AtApply
	}
	if notifier == nil {
		notifier = discard{}
	}
	return &Store{cursor: 1, policy: policy, notify: notifier}
}

// Policy returns the range resolution policy.
func (s *Store) Policy() resolve.Policy { return s.policy }

// Len returns the number of pending suggestions.
func (s *Store) Len() int { return len(s.items) }

// Cursor returns the 1-based position of the current suggestion.
func (s *Store) Cursor() int { return s.cursor }

// Current returns the suggestion under the cursor.
func (s *Store) Current() (model.Suggestion, bool) {
	if len(s.items) == 0 {
		return model.Suggestion{}, false
	}
	return s.items[s.cursor-1], true
}

// Items returns a copy of the pending suggestions in order.
func (s *Store) Items() []model.Suggestion {
	return append([]model.Suggestion(nil), s.items...)
}

// Append adds suggestions in order without moving the cursor.
func (s *Store) Append(suggestions ...model.Suggestion) {
	s.items = append(s.items, suggestions...)
}

// Next moves the cursor forward, stopping at the last suggestion.
func (s *Store) Next() error {
	return s.move(1)
}

// Prev moves the cursor back, stopping at the first suggestion.
func (s *Store) Prev() error {
	return s.move(-1)
}

func (s *Store) move(delta int) error {
	if len(s.items) == 0 {
		s.notify.Notify(model.LevelInfo, "No suggestions")
		return ErrEmpty
	}
	s.cursor = clamp(s.cursor+delta, len(s.items))
	return nil
}

// ApplyCurrent writes the current suggestion into doc and removes it. The
// returned suggestion carries the range it replaced. On a failed write the
// suggestion stays so it can be retried or rejected.
func (s *Store) ApplyCurrent(ctx context.Context, doc editor.Document) (model.Suggestion, error) {
	current, ok := s.Current()
	if !ok {
		s.notify.Notify(model.LevelInfo, "No suggestions")
		return model.Suggestion{}, ErrEmpty
	}
	target, err := s.apply(ctx, doc, current)
	if err != nil {
		s.notify.Notify(model.LevelError, fmt.Sprintf("Failed to apply suggestion: %v", err))
		return current, err
	}
	s.removeAt(s.cursor - 1)
	s.notify.Notify(model.LevelSuccess, fmt.Sprintf("Applied: %s", current.Description))
	return current.WithRange(target), nil
}

// RejectCurrent drops the current suggestion without touching the document.
func (s *Store) RejectCurrent() (model.Suggestion, error) {
	current, ok := s.Current()
	if !ok {
		s.notify.Notify(model.LevelInfo, "No suggestions")
		return model.Suggestion{}, ErrEmpty
	}
	s.removeAt(s.cursor - 1)
	s.notify.Notify(model.LevelInfo, fmt.Sprintf("Rejected: %s", current.Description))
	return current, nil
}

// ApplyAll applies every suggestion in order and returns the applied ones,
// each carrying the range it replaced. Suggestions whose write failed are
// kept; the returned error joins their failures.
func (s *Store) ApplyAll(ctx context.Context, doc editor.Document) ([]model.Suggestion, error) {
	var (
		kept    []model.Suggestion
		applied []model.Suggestion
		errs    []error
	)
	for _, item := range s.items {
		target, err := s.apply(ctx, doc, item)
		if err != nil {
			kept = append(kept, item)
			errs = append(errs, fmt.Errorf("%s: %w", item.Description, err))
			continue
		}
		applied = append(applied, item.WithRange(target))
	}
	s.items = kept
	s.cursor = 1

	if len(errs) > 0 {
		s.notify.Notify(model.LevelError, fmt.Sprintf("Applied %d suggestion(s), %d failed", len(applied), len(errs)))
		return applied, errors.Join(errs...)
	}
	s.notify.Notify(model.LevelSuccess, fmt.Sprintf("Applied %d suggestion(s)", len(applied)))
	return applied, nil
}

// RejectAll drops every suggestion and returns how many were dropped.
func (s *Store) RejectAll() int {
	n := len(s.items)
	s.items = nil
	s.cursor = 1
	s.notify.Notify(model.LevelInfo, fmt.Sprintf("Rejected %d suggestion(s)", n))
	return n
}

// Clear drops every suggestion silently.
func (s *Store) Clear() {
	s.items = nil
	s.cursor = 1
}

// View returns the render entries in order.
func (s *Store) View() []Entry {
	entries := make([]Entry, len(s.items))
	for i, item := range s.items {
		entries[i] = Entry{
			Index:       i + 1,
			Description: item.Description,
			Language:    item.Language,
			Current:     i+1 == s.cursor,
			Lines:       append([]string(nil), item.Lines...),
			Range:       item.Range,
		}
	}
	return entries
}

// Target computes the range item would replace in doc under the store's
// policy. Suggestions without content target the caret line.
func (s *Store) Target(ctx context.Context, doc editor.Document, item model.Suggestion) (model.Range, error) {
	caret, err := doc.CaretLine(ctx)
	if err != nil {
		return model.Range{}, fmt.Errorf("failed to read caret: %w", err)
	}
	if len(item.Lines) == 0 {
		return resolve.Fallback(caret), nil
	}
	if s.policy == resolve.AtCreation && item.Range != nil {
		return *item.Range, nil
	}
	lines, err := doc.Lines(ctx)
	if err != nil {
		return model.Range{}, fmt.Errorf("failed to read document: %w", err)
	}
	return resolve.Range(item.Lines, lines, caret), nil
}

func (s *Store) apply(ctx context.Context, doc editor.Document, item model.Suggestion) (model.Range, error) {
	target, err := s.Target(ctx, doc, item)
	if err != nil {
		return model.Range{}, err
	}
	return target, doc.ReplaceLines(ctx, target.Start, target.End, item.Lines)
}

func (s *Store) removeAt(i int) {
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	s.cursor = clamp(s.cursor, len(s.items))
}

func clamp(cursor, n int) int {
	if cursor > n {
		cursor = n
	}
	if cursor < 1 {
		cursor = 1
	}
	return cursor
}
