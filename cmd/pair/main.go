package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/pair"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		var detailed *pair.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		pslog.Ctx(ctx).With("err", err).Error("pair command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &cli.Config{}
	root := &cobra.Command{
		Use:           "pair",
		Short:         "Pair with a coding assistant on the file you are editing",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags.BindGlobal(root.PersistentFlags())

	root.AddCommand(newChatCmd(flags))
	root.AddCommand(newAskCmd(flags))
	root.AddCommand(newParseCmd(flags))
	root.AddCommand(newApplyCmd(flags))
	root.AddCommand(newContextCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newHistoryCmd(flags))

	return root
}
