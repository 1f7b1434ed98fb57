package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

var (
	excludeCmd = &cobra.Command{
		Use:   "exclude",
		Short: "manage the exclusion list",
	}

	excludeListCmd = &cobra.Command{
		Use:     "list",
		Short:   "print excluded paths",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return editExclusions(cmd, service.MethodExclusions, wire.Empty{})
		},
	}

	excludeAddCmd = &cobra.Command{
		Use:   "add <path>...",
		Short: "exclude paths from scanning and search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editExclusions(cmd, service.MethodExcludeAdd, wire.StringList(args))
		},
	}

	excludeRemoveCmd = &cobra.Command{
		Use:     "remove <path>...",
		Short:   "remove paths from the exclusion list",
		Aliases: []string{"rm"},
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editExclusions(cmd, service.MethodExcludeRemove, wire.StringList(args))
		},
	}
)

func registerExcludeCommands() {
	excludeCmd.AddCommand(excludeListCmd, excludeAddCmd, excludeRemoveCmd)
	rootCmd.AddCommand(excludeCmd)
}

func editExclusions(cmd *cobra.Command, method string, payload wire.Value) error {
	paths, err := rpc.Invoke[wire.StringList](cmd.Context(), newClient(), method, payload)
	if err != nil {
		return err
	}

	return printValue(cmd, paths, strings.Join(paths, "\n"))
}
