package nvim

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/model"
)

func TestNotifyLevel(t *testing.T) {
	assert.Equal(t, 2, notifyLevel(model.LevelInfo))
	assert.Equal(t, 2, notifyLevel(model.LevelSuccess))
	assert.Equal(t, 3, notifyLevel(model.LevelWarn))
	assert.Equal(t, 4, notifyLevel(model.LevelError))
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, `/tmp/my\ file\#1.go`, escapePath("/tmp/my file#1.go"))
}

func TestLineConversion(t *testing.T) {
	lines := []string{"a", "", "c"}
	assert.Equal(t, lines, fromBytes(toBytes(lines)))
}

func TestHeadlessDocument(t *testing.T) {
	if _, err := exec.LookPath("nvim"); err != nil {
		t.Skip("nvim not installed")
	}
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "calc.lua")
	require.NoError(t, os.WriteFile(path, []byte("local x = 1\nreturn x\n"), 0o644))

	m, err := New(ctx, "")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	require.True(t, m.SelfStarted())
	require.NoError(t, m.Open(path))

	doc, err := m.Document()
	require.NoError(t, err)
	assert.Equal(t, path, doc.Name())

	lines, err := doc.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"local x = 1", "return x"}, lines)

	caret, err := doc.CaretLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, caret)

	require.NoError(t, doc.ReplaceLines(ctx, 1, 1, []string{"local x = 2", "local y = 3"}))
	lines, err = doc.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"local x = 2", "local y = 3", "return x"}, lines)

	require.ErrorIs(t, doc.ReplaceLines(ctx, 9, 9, []string{"z"}), editor.ErrWriteFailed)

	require.NoError(t, m.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local x = 2\nlocal y = 3\nreturn x\n", string(data))
}
