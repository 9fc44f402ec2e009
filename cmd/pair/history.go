package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/state"
	"github.com/sokinpui/pair/internal/ui"
	"github.com/sokinpui/pair/pair"
)

func newHistoryCmd(flags *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect exported sessions and applied suggestions",
	}
	cmd.AddCommand(newHistoryExportCmd(flags))
	cmd.AddCommand(newHistoryJournalCmd(flags))
	return cmd
}

func newHistoryExportCmd(flags *cli.Config) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the most recent session transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			history, ok, err := app.State().LoadHistory()
			if err != nil {
				return err
			}
			if !ok {
				ui.Info("No exported sessions in %s", app.State().StateDir)
				return nil
			}
			md := state.RenderMarkdown("latest", history)
			if !html {
				_, err := fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			out, err := state.RenderHTML(md)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Render the transcript as HTML.")
	return cmd
}

func newHistoryJournalCmd(flags *cli.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "List suggestions applied to files",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			w := cmd.OutOrStdout()
			journal := app.State().Journal()
			if len(journal) == 0 {
				ui.Info("Nothing applied yet.")
				return nil
			}
			for _, entry := range journal {
				ui.HeaderColor.Fprintf(w, "%s\n", time.Unix(entry.Timestamp, 0).Format(time.RFC3339))
				for _, op := range entry.Operations {
					fmt.Fprintf(w, "  %s:%d-%d  %s\n", op.Path, op.Start, op.End, op.Description)
				}
			}
			return nil
		},
	}
}
