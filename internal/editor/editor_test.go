package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplice(t *testing.T) {
	doc := []string{"a", "b", "c", "d"}

	tests := []struct {
		name       string
		start, end int
		lines      []string
		want       []string
		wantErr    bool
	}{
		{name: "replace middle", start: 2, end: 3, lines: []string{"X"}, want: []string{"a", "X", "d"}},
		{name: "grow", start: 1, end: 1, lines: []string{"1", "2"}, want: []string{"1", "2", "b", "c", "d"}},
		{name: "delete line", start: 4, end: 4, lines: nil, want: []string{"a", "b", "c"}},
		{name: "end clamped", start: 3, end: 10, lines: []string{"z"}, want: []string{"a", "b", "z"}},
		{name: "append", start: 5, end: 5, lines: []string{"e"}, want: []string{"a", "b", "c", "d", "e"}},
		{name: "start past end", start: 6, end: 6, wantErr: true},
		{name: "start zero", start: 0, end: 1, wantErr: true},
		{name: "inverted", start: 3, end: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Splice(doc, tt.start, tt.end, tt.lines)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrWriteFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, doc, "input must not be modified")
}

func TestSpliceIntoEmptyDocument(t *testing.T) {
	got, err := Splice(nil, 1, 1, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, got)
}

func TestBufferCaretClamped(t *testing.T) {
	ctx := context.Background()
	b := NewBuffer("x.go", "go", []string{"a", "b", "c"})
	b.SetCaret(3)

	require.NoError(t, b.ReplaceLines(ctx, 2, 3, []string{"z"}))

	caret, err := b.CaretLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, caret)

	lines, err := b.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, lines)
}

func TestFileDocumentWritesThrough(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "init.lua")
	require.NoError(t, os.WriteFile(path, []byte("local a = 1\nreturn a\n"), 0o644))

	doc, err := OpenFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "lua", doc.Language())

	require.NoError(t, doc.ReplaceLines(ctx, 1, 1, []string{"local a = 2"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local a = 2\nreturn a\n", string(data))

	changed, err := doc.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "own writes are not reported as changes")
}

func TestFileDocumentFailedWriteKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	doc, err := OpenFile(filepath.Join(t.TempDir(), "a.txt"), "text")
	require.NoError(t, err)

	err = doc.ReplaceLines(ctx, 3, 3, []string{"x"})
	require.ErrorIs(t, err, ErrWriteFailed)

	lines, err := doc.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestFileDocumentWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))
	doc, err := OpenFile(path, "")
	require.NoError(t, err)

	changed := make(chan struct{}, 4)
	require.NoError(t, doc.Watch(ctx, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	// A write may surface as several events (truncate, then data).
	require.Eventually(t, func() bool {
		lines, err := doc.Lines(ctx)
		return err == nil && len(lines) == 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotEmpty(t, changed)
}
