package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/session"
	"github.com/sokinpui/pair/internal/transport"
	"github.com/sokinpui/pair/internal/tui"
	"github.com/sokinpui/pair/internal/ui"
	"github.com/sokinpui/pair/pair"
)

// fileArg lets the document be given positionally.
func fileArg(flags *cli.Config, args []string) {
	if len(args) > 0 && flags.File == "" {
		flags.File = args[0]
	}
}

func newChatCmd(flags *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [file]",
		Short: "Open the interactive chat for a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileArg(flags, args)
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()
			return tui.Run(cmd.Context(), app)
		},
	}
	flags.BindDocument(cmd.Flags())
	flags.BindChat(cmd.Flags())
	return cmd
}

type askEvent struct {
	reply  string
	err    error
	closed bool
	code   int
}

func newAskCmd(flags *cli.Config) *cobra.Command {
	var applyAll bool
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send one message about a file and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			presenter := ui.NewPresenter(cmd.ErrOrStderr())
			sess, err := app.NewSession(ctx, presenter)
			if err != nil {
				return err
			}
			if sess.Document() != nil {
				presenter.Preview = func() (string, error) { return app.Preview(ctx, sess) }
			}

			events := make(chan askEvent, 8)
			tr, err := app.NewTransport(transport.Handlers{
				OnReply:  func(reply string) { events <- askEvent{reply: reply} },
				OnError:  func(err error) { events <- askEvent{err: err} },
				OnClosed: func(code int) { events <- askEvent{closed: true, code: code} },
			})
			if err != nil {
				return err
			}
			defer tr.Close()
			sess.SetSender(tr)

			if err := sess.SendMessage(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			if err := await(ctx, sess, events, cmd); err != nil {
				return err
			}

			if applyAll && sess.Pending() > 0 {
				summary, err := app.ApplyAll(ctx, sess)
				ui.PrintSummary(cmd.ErrOrStderr(), summary)
				return err
			}
			return nil
		},
	}
	flags.BindDocument(cmd.Flags())
	flags.BindChat(cmd.Flags())
	cmd.Flags().BoolVar(&applyAll, "apply", false, "Apply every suggestion of the reply.")
	return cmd
}

// await feeds transport events to sess until the pending request settles.
func await(ctx context.Context, sess *session.Session, events <-chan askEvent, cmd *cobra.Command) error {
	var failure error
	for sess.Processing() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch {
			case ev.err != nil:
				failure = ev.err
				sess.HandleError(ctx, ev.err)
			case ev.closed:
				sess.HandleClosed(ctx, ev.code)
				if ev.code != 0 && failure == nil {
					failure = fmt.Errorf("assistant exited with code %d", ev.code)
				}
			default:
				fmt.Fprintln(cmd.OutOrStdout(), ev.reply)
				found := sess.HandleReply(ctx, ev.reply)
				pslog.Ctx(ctx).Debug("reply handled", "suggestions", len(found))
			}
		}
	}
	return failure
}
