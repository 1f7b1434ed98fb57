package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/app"
	"github.com/yeisme/fsindex/pkg/configs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the index daemon and answer requests on the socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, configs.GetConfig())
		if err != nil {
			return err
		}

		return a.Run(ctx)
	},
}

func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
}

// localEngineScan 不经过守护进程，直接在当前进程里扫描并打印报告.
func localEngineScan(ctx context.Context, cmd *cobra.Command, roots []string) error {
	engine, err := app.NewEngine(*configs.GetConfig(), nil)
	if err != nil {
		return err
	}

	report, err := engine.Scan(ctx, roots...)
	if err != nil {
		return err
	}

	return printValue(cmd, report, report.String())
}
