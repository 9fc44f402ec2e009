package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/ui"
	"github.com/sokinpui/pair/model"
	"github.com/sokinpui/pair/pair"
)

func newContextCmd(flags *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context [file]",
		Short: "Print what the assistant is told about a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileArg(flags, args)
			app, err := pair.New(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			dc, err := app.Context(cmd.Context())
			if err != nil {
				return err
			}
			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), dc)
			}
			printContext(cmd, dc)
			return nil
		},
	}
	flags.BindDocument(cmd.Flags())
	flags.BindOutput(cmd.Flags())
	return cmd
}

func printContext(cmd *cobra.Command, dc model.DocumentContext) {
	w := cmd.OutOrStdout()
	language := dc.Language
	if language == "" {
		language = "unknown"
	}
	ui.HeaderColor.Fprintf(w, "%s\n", dc.Filename)
	fmt.Fprintf(w, "Language: %s\nLines:    %d\nSize:     %d bytes\n", language, dc.LineCount, dc.Size)
	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		ui.InfoColor.Fprintf(w, "%s:\n", title)
		fmt.Fprintf(w, "  %s\n", strings.Join(items, "\n  "))
	}
	list("Imports", dc.Imports)
	list("Functions", dc.Functions)
	list("Comments", dc.Comments)
}
