package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/configs"
)

const redacted = "******"

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect the effective configuration",
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if used := configs.GetViper().ConfigFileUsed(); used != "" {
				fmt.Fprintln(cmd.OutOrStdout(), used)
				return
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "no config file found, using defaults and FSINDEX_* environment")
		},
	}

	configShowCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the effective configuration as JSON, secrets redacted",
		Aliases: []string{"debug"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				configs.GetViper().Debug()
			}

			c := *configs.GetConfig()
			if c.DB.Password != "" {
				c.DB.Password = redacted
			}

			if c.KV.Redis.Password != "" {
				c.KV.Redis.Password = redacted
			}

			if c.KV.NATS.Password != "" {
				c.KV.NATS.Password = redacted
			}

			if c.MQ.Redis.Password != "" {
				c.MQ.Redis.Password = redacted
			}

			if c.MQ.Common.Password != "" {
				c.MQ.Common.Password = redacted
			}

			return printJSON(cmd, c)
		},
	}
)

func registerConfigsCommands() {
	configCmd.AddCommand(configPathCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
