// Package resolve locates the document lines a suggestion should replace.
package resolve

import (
	"strings"

	"github.com/sokinpui/pair/model"
)

// Policy selects when a suggestion's target range is computed.
type Policy string

const (
	// AtCreation resolves once, when the reply is parsed. The range can go
	// stale if the document changes before the suggestion is applied.
	AtCreation Policy = "creation"
	// AtApply re-resolves against the live document on every apply.
	AtApply Policy = "apply"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == AtCreation || p == AtApply
}

// Range finds the span of doc that content should replace. The first
// non-empty content line, stripped of leading whitespace, is searched for as
// a literal substring of each stripped document line, top to bottom. When
// nothing matches, the caret line is used.
//
// Callers must not pass empty content; see Fallback.
func Range(content, doc []string, caretLine int) model.Range {
	needle := firstNonEmpty(content)
	if needle != "" {
		for i, line := range doc {
			if !strings.Contains(strings.TrimLeft(line, " \t"), needle) {
				continue
			}
			start := i + 1
			end := start + len(content) - 1
			if end > len(doc) {
				end = len(doc)
			}
			return model.Range{Start: start, End: end}
		}
	}
	return Fallback(caretLine)
}

// Fallback is the single-line range at the caret.
func Fallback(caretLine int) model.Range {
	if caretLine < 1 {
		caretLine = 1
	}
	return model.Range{Start: caretLine, End: caretLine}
}

// Suggestion returns s with its range resolved against doc. Suggestions
// without content are returned unchanged.
func Suggestion(s model.Suggestion, doc []string, caretLine int) model.Suggestion {
	if len(s.Lines) == 0 {
		return s
	}
	return s.WithRange(Range(s.Lines, doc, caretLine))
}

func firstNonEmpty(lines []string) string {
	for _, line := range lines {
		if trimmed := strings.TrimLeft(line, " \t"); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
