// Package editor defines the document collaborator the suggestion engine
// reads from and writes to, with in-memory and file-backed implementations.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrWriteFailed is returned when a document rejects a replacement.
var ErrWriteFailed = errors.New("document write failed")

// Document is a live, mutable text buffer. Line numbers are 1-based.
type Document interface {
	// Name identifies the document, usually its path.
	Name() string
	// Language is the editor's language tag, possibly empty.
	Language() string
	Lines(ctx context.Context) ([]string, error)
	CaretLine(ctx context.Context) (int, error)
	// ReplaceLines replaces the inclusive span [start, end] with lines.
	// start may be one past the last line to append.
	ReplaceLines(ctx context.Context, start, end int, lines []string) error
}

// Buffer is an in-memory Document.
type Buffer struct {
	mu       sync.Mutex
	name     string
	language string
	lines    []string
	caret    int
}

// NewBuffer creates a Buffer holding a copy of lines with the caret on line 1.
func NewBuffer(name, language string, lines []string) *Buffer {
	return &Buffer{
		name:     name,
		language: language,
		lines:    append([]string(nil), lines...),
		caret:    1,
	}
}

func (b *Buffer) Name() string     { return b.name }
func (b *Buffer) Language() string { return b.language }

func (b *Buffer) Lines(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...), nil
}

func (b *Buffer) CaretLine(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caret, nil
}

// SetCaret moves the caret, clamped to the document.
func (b *Buffer) SetCaret(line int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caret = clampCaret(line, len(b.lines))
}

// SetLines replaces the whole content.
func (b *Buffer) SetLines(lines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append([]string(nil), lines...)
	b.caret = clampCaret(b.caret, len(b.lines))
}

func (b *Buffer) ReplaceLines(ctx context.Context, start, end int, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := Splice(b.lines, start, end, lines)
	if err != nil {
		return err
	}
	b.lines = next
	b.caret = clampCaret(b.caret, len(b.lines))
	return nil
}

// Splice returns a copy of doc with the inclusive span [start, end] replaced.
// end is clamped to the document; start may be len(doc)+1 to append.
func Splice(doc []string, start, end int, lines []string) ([]string, error) {
	if start < 1 || start > len(doc)+1 {
		return nil, fmt.Errorf("%w: line %d outside document of %d lines", ErrWriteFailed, start, len(doc))
	}
	if end > len(doc) {
		end = len(doc)
	}
	if end < start-1 {
		return nil, fmt.Errorf("%w: invalid range %d-%d", ErrWriteFailed, start, end)
	}
	out := make([]string, 0, len(doc)-(end-start+1)+len(lines))
	out = append(out, doc[:start-1]...)
	out = append(out, lines...)
	out = append(out, doc[end:]...)
	return out, nil
}

func clampCaret(line, total int) int {
	if line > total {
		line = total
	}
	if line < 1 {
		line = 1
	}
	return line
}
