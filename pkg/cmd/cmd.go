// Package cmd 命令行入口：serve 启动守护进程，其余子命令通过 socket 调用它.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/configs"
)

var (
	configPath string
	socketPath string
	debug      bool
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:           configs.AppName,
		Short:         "Index local files and search them by name, category, tag and keyword",
		Version:       configs.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			cfg := configs.GetConfig()
			if socketPath != "" {
				cfg.Server.SocketPath = socketPath
			}

			if debug {
				cfg.Server.Debug = true
			}

			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file or directory")
	flags.StringVarP(&socketPath, "socket", "s", "", "unix socket path, overrides server.socket_path")
	flags.BoolVar(&debug, "debug", false, "enable debug output")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")

	registerServeCommands()
	registerClientCommands()
	registerExcludeCommands()
	registerConfigsCommands()
	registerBackendCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
