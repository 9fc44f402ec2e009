package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"

	"github.com/sokinpui/pair/cli"
	"github.com/sokinpui/pair/internal/config"
)

func newConfigCmd(flags *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(flags))
	cmd.AddCommand(newConfigShowCmd(flags))
	return cmd
}

func newConfigInitCmd(flags *cli.Config) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Save(flags.ConfigPath, overwrite)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config wrote", "path", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(flags *cli.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			flags.Override(&cfg)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
