package editor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/internal/fs"
	"github.com/sokinpui/pair/internal/lang"
)

// FileDocument is a Buffer persisted to a file on every write.
type FileDocument struct {
	*Buffer
	path string

	mu        sync.Mutex
	lastWrite string
}

// OpenFile loads path into a FileDocument. A missing file opens empty. An
// empty language guesses one from the file extension.
func OpenFile(path, language string) (*FileDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	lines, err := fs.ReadLines(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", abs, err)
	}
	if language == "" {
		language = lang.FromPath(abs).String()
	}
	return &FileDocument{
		Buffer:    NewBuffer(abs, language, lines),
		path:      abs,
		lastWrite: fs.LinesSHA256(lines),
	}, nil
}

// Path returns the absolute file path.
func (d *FileDocument) Path() string { return d.path }

// ReplaceLines updates the buffer and writes the file. On a failed write the
// buffer is rolled back.
func (d *FileDocument) ReplaceLines(ctx context.Context, start, end int, lines []string) error {
	before, err := d.Buffer.Lines(ctx)
	if err != nil {
		return err
	}
	if err := d.Buffer.ReplaceLines(ctx, start, end, lines); err != nil {
		return err
	}
	after, err := d.Buffer.Lines(ctx)
	if err != nil {
		return err
	}
	if err := fs.WriteLines(d.path, after); err != nil {
		d.Buffer.SetLines(before)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	d.mu.Lock()
	d.lastWrite = fs.LinesSHA256(after)
	d.mu.Unlock()
	return nil
}

// Reload re-reads the file. It reports false when the content matches the
// last write, so self-inflicted changes are ignored.
func (d *FileDocument) Reload() (bool, error) {
	lines, err := fs.ReadLines(d.path)
	if err != nil {
		return false, err
	}
	hash := fs.LinesSHA256(lines)
	d.mu.Lock()
	same := hash == d.lastWrite
	d.lastWrite = hash
	d.mu.Unlock()
	if same {
		return false, nil
	}
	d.Buffer.SetLines(lines)
	return true, nil
}

// Watch calls onChange whenever the file changes on disk, until ctx is done.
// The directory is watched so editors that save by rename are still seen.
func (d *FileDocument) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	log := pslog.Ctx(ctx).With("path", d.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != d.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				changed, err := d.Reload()
				if err != nil {
					log.Warn("document reload failed", "err", err)
					continue
				}
				if changed {
					log.Debug("document changed on disk")
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("document watch error", "err", err)
			}
		}
	}()
	return nil
}
