package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/internal/storage/db"
	"github.com/yeisme/fsindex/pkg/internal/storage/kv"
	"github.com/yeisme/fsindex/pkg/internal/storage/mq"
)

// backendsCmd 列出编译进来的数据库、KV 与消息队列实现，取决于构建标签.
var backendsCmd = &cobra.Command{
	Use:     "backends",
	Short:   "list the database, kv and message queue backends compiled into this binary",
	Aliases: []string{"drivers"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backends := map[string][]string{
			"db": names(db.GetRegisteredDBTypes()),
			"kv": names(kv.GetRegisteredKVTypes()),
			"mq": names(mq.GetRegisteredTypes()),
		}

		if jsonOutput {
			return printJSON(cmd, backends)
		}

		for _, kind := range []string{"db", "kv", "mq"} {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, strings.Join(backends[kind], ", "))
		}

		return nil
	},
}

func names[T ~string](types []T) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}

	return out
}

func registerBackendCommands() {
	rootCmd.AddCommand(backendsCmd)
}
