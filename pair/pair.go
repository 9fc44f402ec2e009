package pair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"pkt.systems/pslog"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/config"
	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/extract"
	"github.com/sokinpui/pair/internal/fs"
	"github.com/sokinpui/pair/internal/nvim"
	"github.com/sokinpui/pair/internal/parser"
	"github.com/sokinpui/pair/internal/patcher"
	"github.com/sokinpui/pair/internal/resolve"
	"github.com/sokinpui/pair/internal/session"
	"github.com/sokinpui/pair/internal/source"
	"github.com/sokinpui/pair/internal/state"
	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/internal/transport"
	"github.com/sokinpui/pair/model"
)

var (
	// ErrNoDocument is returned by operations that need a --file.
	ErrNoDocument = errors.New("no document selected")
	// ErrSaveFailed is returned when an edited Neovim buffer cannot be written.
	ErrSaveFailed = errors.New("failed to save document")
)

// App orchestrates the entire application logic.
type App struct {
	cfg            config.Config
	flags          *cli.Config
	stateManager   *state.Manager
	pathResolver   *fs.PathResolver
	sourceProvider *source.SourceProvider
	extractor      *extract.Extractor

	nvim *nvim.Manager
	doc  editor.Document
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// recoverInto turns a panic into a DetailedError on *err.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = &DetailedError{
			Err:   fmt.Errorf("internal panic: %v", r),
			Stack: debug.Stack(),
		}
	}
}

// New loads the configuration, applies flag overrides and prepares the
// state directory.
func New(flags *cli.Config) (*App, error) {
	if flags == nil {
		flags = &cli.Config{}
	}
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	flags.Override(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, flags)
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg config.Config, flags *cli.Config) (*App, error) {
	if flags == nil {
		flags = &cli.Config{}
	}
	stateManager, err := state.New(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	pathResolver, err := fs.NewPathResolver(nil)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:            cfg,
		flags:          flags,
		stateManager:   stateManager,
		pathResolver:   pathResolver,
		sourceProvider: source.New(),
		extractor:      extract.New(),
	}, nil
}

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// State returns the state manager.
func (a *App) State() *state.Manager { return a.stateManager }

// Source returns the stdin/clipboard provider.
func (a *App) Source() *source.SourceProvider { return a.sourceProvider }

// Close releases the editor connection and background workers.
func (a *App) Close() {
	if a.nvim != nil {
		a.nvim.Close()
		a.nvim = nil
	}
	a.extractor.Close()
}

// Document opens the selected file, through Neovim when requested, and
// caches it for the lifetime of the App.
func (a *App) Document(ctx context.Context) (editor.Document, error) {
	if a.doc != nil {
		return a.doc, nil
	}
	if a.flags.File == "" && !a.flags.Nvim {
		return nil, ErrNoDocument
	}

	path := ""
	if a.flags.File != "" {
		path = a.pathResolver.ResolveExisting(a.flags.File)
		if path == "" {
			path = a.pathResolver.Resolve(a.flags.File)
		}
	}

	if a.flags.Nvim {
		m, err := nvim.New(ctx, a.flags.NvimAddr)
		if err != nil {
			return nil, err
		}
		if path != "" {
			if err := m.Open(path); err != nil {
				m.Close()
				return nil, err
			}
		}
		doc, err := m.Document()
		if err != nil {
			m.Close()
			return nil, err
		}
		a.nvim, a.doc = m, doc
		return doc, nil
	}

	doc, err := editor.OpenFile(path, "")
	if err != nil {
		return nil, err
	}
	a.doc = doc
	return doc, nil
}

// Notifier returns the editor notifier when running through Neovim.
func (a *App) Notifier() suggest.Notifier {
	if a.nvim == nil {
		return nil
	}
	return a.nvim
}

// SaveDocument persists a Neovim buffer; file documents write through.
func (a *App) SaveDocument() error {
	if a.nvim == nil {
		return nil
	}
	if err := a.nvim.Save(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// Context snapshots the selected document.
func (a *App) Context(ctx context.Context) (dc model.DocumentContext, err error) {
	defer recoverInto(&err)
	doc, err := a.Document(ctx)
	if err != nil {
		return model.DocumentContext{}, err
	}
	lines, err := doc.Lines(ctx)
	if err != nil {
		return model.DocumentContext{}, err
	}
	return a.extractor.ExtractLines(doc.Name(), lines, doc.Language()), nil
}

// NewSession creates a session over the selected document. A missing
// document is allowed; the session then sends messages unenriched.
func (a *App) NewSession(ctx context.Context, presenter session.Presenter) (*session.Session, error) {
	doc, err := a.Document(ctx)
	if err != nil && !errors.Is(err, ErrNoDocument) {
		return nil, err
	}
	opts := session.Options{
		ContextLines: a.cfg.ContextLines,
		MaxHistory:   a.cfg.MaxHistory,
		AutoPreview:  a.cfg.AutoPreview,
		Policy:       resolve.Policy(a.cfg.ResolvePolicy),
	}
	sess := session.New(doc, nil, presenter, a.extractor, opts)
	if a.flags.Resume {
		history, ok, err := a.stateManager.LoadHistory()
		if err != nil {
			return nil, fmt.Errorf("failed to resume session: %w", err)
		}
		if ok {
			sess.SetHistory(history)
			pslog.Ctx(ctx).Info("session resumed", "messages", len(history))
		}
	}
	if doc != nil {
		if _, err := sess.UpdateContext(ctx); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// NewTransport builds the configured transport.
func (a *App) NewTransport(handlers transport.Handlers) (transport.Transport, error) {
	if a.cfg.Transport.Kind == "openai" {
		tr, err := transport.NewOpenAI(transport.OpenAIConfig{
			Model:        a.cfg.OpenAI.Model,
			BaseURL:      a.cfg.OpenAI.BaseURL,
			APIKey:       a.cfg.APIKey(),
			SystemPrompt: a.cfg.OpenAI.SystemPrompt,
		}, handlers)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}

	dir := ""
	if f, ok := a.doc.(*editor.FileDocument); ok {
		dir = filepath.Dir(f.Path())
	}
	tr, err := transport.NewCLI(transport.CLIConfig{
		Command: a.cfg.Transport.Command,
		Args:    a.cfg.Transport.Args,
		Mode:    transport.Mode(a.cfg.Transport.Mode),
		Dir:     dir,
		Settle:  time.Duration(a.cfg.Transport.SettleMS) * time.Millisecond,
		MaxWait: time.Duration(a.cfg.Transport.MaxWaitSeconds) * time.Second,
	}, handlers)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Yank copies text to the system clipboard.
func (a *App) Yank(text string) error {
	return a.sourceProvider.Yank(text)
}

// ReadReply reads an assistant reply from piped stdin or the clipboard.
func (a *App) ReadReply() (string, error) {
	return a.sourceProvider.GetContent()
}

// Suggestions parses reply and resolves each suggestion against the
// selected document when there is one.
func (a *App) Suggestions(ctx context.Context, reply string) (found []model.Suggestion, err error) {
	defer recoverInto(&err)
	found = parser.Parse(reply)
	doc, err := a.Document(ctx)
	if errors.Is(err, ErrNoDocument) {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	lines, err := doc.Lines(ctx)
	if err != nil {
		return nil, err
	}
	caret, err := doc.CaretLine(ctx)
	if err != nil {
		return nil, err
	}
	for i, s := range found {
		if s.Language == "" {
			s.Language = doc.Language()
		}
		found[i] = resolve.Suggestion(s, lines, caret)
	}
	return found, nil
}

// ApplyReply parses reply and applies every suggestion to the selected
// document, recording the run in the journal.
func (a *App) ApplyReply(ctx context.Context, reply string, notifier suggest.Notifier) (summary model.Summary, err error) {
	defer recoverInto(&err)
	doc, err := a.Document(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	found, err := a.Suggestions(ctx, reply)
	if err != nil {
		return model.Summary{}, err
	}
	if len(found) == 0 {
		return model.Summary{Message: "No suggestions found. Nothing to do."}, nil
	}

	store := suggest.New(resolve.Policy(a.cfg.ResolvePolicy), notifier)
	store.Append(found...)
	var applied []model.Suggestion
	for store.Len() > 0 {
		cur, _ := store.Current()
		if _, err := store.ApplyCurrent(ctx, doc); err != nil {
			summary.Failed = append(summary.Failed, cur.Description)
			_, _ = store.RejectCurrent()
			continue
		}
		applied = append(applied, cur)
		summary.Applied = append(summary.Applied, cur.Description)
	}

	if len(applied) > 0 {
		if err := a.SaveDocument(); err != nil {
			return summary, err
		}
		a.recordApplied(ctx, doc, applied)
	}
	return summary, nil
}

// ApplyCurrent applies the suggestion under the session cursor, saves the
// document and journals the change.
func (a *App) ApplyCurrent(ctx context.Context, sess *session.Session) error {
	cur, target, targetErr := sess.Target(ctx)
	if err := sess.ApplyCurrent(ctx); err != nil {
		return err
	}
	if err := a.SaveDocument(); err != nil {
		return err
	}
	if targetErr == nil {
		a.recordApplied(ctx, sess.Document(), []model.Suggestion{cur.WithRange(target)})
	}
	return nil
}

// ApplyAll applies every pending suggestion of the session, saves the
// document and journals what was written.
func (a *App) ApplyAll(ctx context.Context, sess *session.Session) (model.Summary, error) {
	summary, applied, err := sess.ApplyAll(ctx)
	if len(applied) == 0 {
		return summary, err
	}
	if saveErr := a.SaveDocument(); saveErr != nil {
		return summary, errors.Join(err, saveErr)
	}
	a.recordApplied(ctx, sess.Document(), applied)
	return summary, err
}

func (a *App) recordApplied(ctx context.Context, doc editor.Document, applied []model.Suggestion) {
	if doc == nil || len(applied) == 0 {
		return
	}
	path := doc.Name()
	if f, ok := doc.(*editor.FileDocument); ok {
		path = f.Path()
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	ops := a.stateManager.CreateOperations(path, applied)
	if err := a.stateManager.Record(ops); err != nil {
		pslog.Ctx(ctx).Warn("journal write failed", "err", err)
	}
}

// Preview renders the suggestion under the session cursor as a diff.
func (a *App) Preview(ctx context.Context, sess *session.Session) (out string, err error) {
	defer recoverInto(&err)
	doc := sess.Document()
	if doc == nil {
		return "", ErrNoDocument
	}
	cur, target, err := sess.Target(ctx)
	if err != nil {
		return "", err
	}
	lines, err := doc.Lines(ctx)
	if err != nil {
		return "", err
	}
	return patcher.Preview(filepath.Base(doc.Name()), lines, cur, target)
}

// ExportHistory writes the session transcript and returns its path.
func (a *App) ExportHistory(sess *session.Session) (string, error) {
	return a.stateManager.Export(sess.ID(), sess.History())
}

// Parse extracts suggestions from an assistant reply.
func Parse(reply string) []model.Suggestion {
	return parser.Parse(reply)
}

// Apply applies every suggestion of reply to the file at path, using the
// default configuration with its journal under stateDir. It is the one-call
// library entry point.
func Apply(ctx context.Context, reply, path, stateDir string) (model.Summary, error) {
	cfg := config.DefaultConfig()
	cfg.StateDir = stateDir
	app, err := NewWithConfig(cfg, &cli.Config{File: path})
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize pair: %w", err)
	}
	defer app.Close()
	return app.ApplyReply(ctx, reply, nil)
}
