package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/internal/editor"
	"github.com/sokinpui/pair/internal/transport"
	"github.com/sokinpui/pair/pair"
)

// Run starts the chat UI over app and blocks until the user quits.
func Run(ctx context.Context, app *pair.App) error {
	log := pslog.Ctx(ctx)
	presenter := NewBoard()
	sess, err := app.NewSession(ctx, presenter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	tr, err := app.NewTransport(transport.Handlers{
		OnReply:  func(reply string) { p.Send(ReplyMsg(reply)) },
		OnError:  func(err error) { p.Send(ErrorMsg{Err: err}) },
		OnClosed: func(code int) { p.Send(ClosedMsg{Code: code}) },
	})
	if err != nil {
		return fmt.Errorf("failed to start assistant: %w", err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Warn("transport close failed", "err", err)
		}
	}()
	sess.SetSender(tr)

	p = tea.NewProgram(New(ctx, sess, presenter, app), tea.WithAltScreen(), tea.WithContext(ctx))

	if f, ok := sess.Document().(*editor.FileDocument); ok {
		if err := f.Watch(ctx, func() { p.Send(fileChangedMsg{}) }); err != nil {
			log.Warn("document watch unavailable", "path", f.Path(), "err", err)
		}
	}

	log.Info("chat started", "session", sess.ID())
	if _, err := p.Run(); err != nil {
		return err
	}
	log.Info("chat ended", "session", sess.ID(), "messages", len(sess.History()))
	return nil
}
