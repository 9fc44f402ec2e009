package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/resolve"
	"github.com/sokinpui/pair/internal/suggest"
	"github.com/sokinpui/pair/internal/ui"
	"github.com/sokinpui/pair/model"
	"github.com/sokinpui/pair/pair"
)

var errEmptyReply = errors.New("no reply to read: pipe one on stdin or copy it to the clipboard")

func newParseCmd(flags *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "List the suggestions of an assistant reply read from stdin or the clipboard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fileArg(flags, args)
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			reply, err := app.ReadReply()
			if err != nil {
				return err
			}
			if reply == "" {
				return errEmptyReply
			}
			pslog.Ctx(ctx).Debug("reply read", "source", app.Source().Origin(), "chars", len(reply))

			found, err := app.Suggestions(ctx, reply)
			if err != nil {
				return err
			}
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), found)
			}
			ui.PrintSuggestions(cmd.OutOrStdout(), entries(found, app.Config().ResolvePolicy))
			return nil
		},
	}
	flags.BindDocument(cmd.Flags())
	flags.BindOutput(cmd.Flags())
	return cmd
}

func newApplyCmd(flags *cli.Config) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply every suggestion of a reply read from stdin or the clipboard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fileArg(flags, args)
			if flags.File == "" && !flags.Nvim {
				return pair.ErrNoDocument
			}
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			reply, err := app.ReadReply()
			if err != nil {
				return err
			}
			if reply == "" {
				return errEmptyReply
			}

			if dryRun {
				return preview(cmd, app, reply)
			}

			notifier := app.Notifier()
			if notifier == nil {
				notifier = ui.NewPresenter(cmd.ErrOrStderr())
			}
			summary, err := app.ApplyReply(ctx, reply, notifier)
			ui.PrintSummary(cmd.ErrOrStderr(), summary)
			return err
		},
	}
	flags.BindDocument(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the diff of each suggestion instead of applying it.")
	return cmd
}

// preview prints a diff per suggestion without touching the document.
func preview(cmd *cobra.Command, app *pair.App, reply string) error {
	ctx := cmd.Context()
	sess, err := app.NewSession(ctx, nil)
	if err != nil {
		return err
	}
	if len(sess.HandleReply(ctx, reply)) == 0 {
		ui.Info("No suggestions found. Nothing to do.")
		return nil
	}
	out := cmd.OutOrStdout()
	for i := 0; i < sess.Pending(); i++ {
		diff, err := app.Preview(ctx, sess)
		if err != nil {
			return err
		}
		ui.PrintDiff(out, diff)
		if err := sess.Next(); err != nil && !errors.Is(err, suggest.ErrEmpty) {
			return err
		}
	}
	return nil
}

// entries renders unstored suggestions the way a Store would list them.
func entries(found []model.Suggestion, policy string) []suggest.Entry {
	st := suggest.New(resolve.Policy(policy), nil)
	st.Append(found...)
	return st.View()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
