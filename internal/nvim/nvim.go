package nvim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/model"
)

const (
	undoDir = "~/.local/state/nvim/undo/"
)

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// New connects to the Neovim listening on addr, $NVIM or
// $NVIM_LISTEN_ADDRESS, in that order, or starts a headless one.
func New(ctx context.Context, addr string) (*Manager, error) {
	log := pslog.Ctx(ctx)
	for _, candidate := range []string{addr, os.Getenv("NVIM"), os.Getenv("NVIM_LISTEN_ADDRESS")} {
		if candidate == "" {
			continue
		}
		v, err := nvim.Dial(candidate)
		if err == nil {
			log.Info("nvim connected", "addr", candidate)
			return &Manager{nvim: v}, nil
		}
		log.Warn("nvim dial failed", "addr", candidate, "err", err)
	}

	tmpDir, err := os.MkdirTemp("", "pair-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 40; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}
	log.Info("nvim started", "socket", socketPath, "pid", cmd.Process.Pid)

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	m.configureTempInstance(ctx)
	return m, nil
}

// configureTempInstance sets up undofile so applied suggestions can be
// undone from the editor later.
func (m *Manager) configureTempInstance(ctx context.Context) {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	os.MkdirAll(expandedUndoDir, 0755)

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	if err := b.Execute(); err != nil {
		pslog.Ctx(ctx).Warn("nvim configure failed", "err", err)
	}
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// SelfStarted reports whether Close will stop the Neovim process.
func (m *Manager) SelfStarted() bool { return m.isSelfStarted }

// Open edits path in the current window.
func (m *Manager) Open(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := m.nvim.Command("edit " + escapePath(absPath)); err != nil {
		return fmt.Errorf("failed to open %s in nvim: %w", path, err)
	}
	return nil
}

// Save writes the current buffer to disk.
func (m *Manager) Save() error {
	if err := m.nvim.Command("write"); err != nil {
		return fmt.Errorf("failed to write buffer: %w", err)
	}
	return nil
}

// Document binds the current buffer as an editor.Document.
func (m *Manager) Document() (*Document, error) {
	buf, err := m.nvim.CurrentBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to get current buffer: %w", err)
	}
	name, err := m.nvim.BufferName(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer name: %w", err)
	}
	var filetype string
	if err := m.nvim.ExecLua("local b = ...; return vim.bo[b].filetype", &filetype, int(buf)); err != nil {
		return nil, fmt.Errorf("failed to get filetype: %w", err)
	}
	return &Document{v: m.nvim, buf: buf, name: name, language: filetype}, nil
}

// Notify shows message through vim.notify.
func (m *Manager) Notify(level model.Level, message string) {
	_ = m.nvim.ExecLua("local msg, lvl = ...; vim.notify(msg, lvl)", nil, message, notifyLevel(level))
}

// notifyLevel maps a notice level to vim.log.levels.
func notifyLevel(level model.Level) int {
	switch level {
	case model.LevelError:
		return 4
	case model.LevelWarn:
		return 3
	default:
		return 2
	}
}

func escapePath(p string) string {
	return strings.NewReplacer(" ", `\ `, "%", `\%`, "#", `\#`).Replace(p)
}

// Document is a Neovim buffer.
type Document struct {
	v        *nvim.Nvim
	buf      nvim.Buffer
	name     string
	language string
}

var _ editor.Document = (*Document)(nil)

func (d *Document) Name() string     { return d.name }
func (d *Document) Language() string { return d.language }

func (d *Document) Lines(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := d.v.BufferLines(d.buf, 0, -1, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read buffer: %w", err)
	}
	return fromBytes(raw), nil
}

// CaretLine is the cursor row of the current window when it shows this
// buffer, else 1.
func (d *Document) CaretLine(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	win, err := d.v.CurrentWindow()
	if err != nil {
		return 0, fmt.Errorf("failed to get current window: %w", err)
	}
	shown, err := d.v.WindowBuffer(win)
	if err != nil || shown != d.buf {
		return 1, nil
	}
	pos, err := d.v.WindowCursor(win)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	return pos[0], nil
}

func (d *Document) ReplaceLines(ctx context.Context, start, end int, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	total, err := d.v.BufferLineCount(d.buf)
	if err != nil {
		return fmt.Errorf("%w: %v", editor.ErrWriteFailed, err)
	}
	if start < 1 || start > total+1 {
		return fmt.Errorf("%w: line %d outside buffer of %d lines", editor.ErrWriteFailed, start, total)
	}
	if end > total {
		end = total
	}
	if end < start-1 {
		return fmt.Errorf("%w: invalid range %d-%d", editor.ErrWriteFailed, start, end)
	}
	if err := d.v.SetBufferLines(d.buf, start-1, end, true, toBytes(lines)); err != nil {
		return fmt.Errorf("%w: %v", editor.ErrWriteFailed, err)
	}
	return nil
}

func toBytes(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, s := range lines {
		out[i] = []byte(s)
	}
	return out
}

func fromBytes(raw [][]byte) []string {
	out := make([]string, len(raw))
	for i, b := range raw {
		out[i] = string(b)
	}
	return out
}
