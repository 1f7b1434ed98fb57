package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/query"
	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/transport"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

var (
	localScan bool

	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "check that the daemon is answering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rpc.Invoke[wire.Empty](cmd.Context(), newClient(), service.MethodPing, wire.Empty{}); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "pong")

			return nil
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search [terms...]",
		Short: "search the index",
		Long: `Search the index. tag:<t> and keyword:<k> match annotations,
name:, ext:, category: and path: are passed through as filters and bare
words match file names. All terms must match. limit:<n> caps the number
of results (limit:0 removes the server default, index.search_limit).

  fsindex search tag:work ext:pdf invoice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.Compile(strings.Join(args, " "))

			files, err := rpc.Invoke[wire.FileList](cmd.Context(), newClient(), service.MethodSearch, q)
			if err != nil {
				return err
			}

			return printFiles(cmd, files)
		},
	}

	scanCmd = &cobra.Command{
		Use:   "scan [roots...]",
		Short: "rescan the given roots, or the configured roots when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if localScan {
				return localEngineScan(cmd.Context(), cmd, args)
			}

			report, err := rpc.Invoke[wire.ScanReport](cmd.Context(), newClient(), service.MethodScan, wire.ScanRequest{Roots: args})
			if err != nil {
				return err
			}

			return printValue(cmd, report, report.String())
		},
	}

	tagCmd = &cobra.Command{
		Use:   "tag <file> <tag>",
		Short: "attach a tag to an indexed file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return annotate(cmd, service.MethodAddTag, args)
		},
	}

	keywordCmd = &cobra.Command{
		Use:   "keyword <file> <keyword>",
		Short: "attach a keyword to an indexed file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return annotate(cmd, service.MethodAddKeyword, args)
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "print index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpc.Invoke[wire.IndexStats](cmd.Context(), newClient(), service.MethodStats, wire.Empty{})
			if err != nil {
				return err
			}

			var b strings.Builder

			fmt.Fprintf(&b, "files:      %d\n", stats.Files)
			fmt.Fprintf(&b, "generation: %d\n", stats.Generation)

			if !stats.LastScan.IsZero() {
				fmt.Fprintf(&b, "last scan:  %s\n", stats.LastScan.Local().Format("2006-01-02 15:04:05"))
			}

			for _, name := range slices.Sorted(maps.Keys(stats.ByCategory)) {
				fmt.Fprintf(&b, "  %-10s %d\n", name, stats.ByCategory[name])
			}

			return printValue(cmd, stats, strings.TrimSuffix(b.String(), "\n"))
		},
	}

	persistCmd = &cobra.Command{
		Use:   "persist <file>...",
		Short: "write files to the configured database now",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := rpc.Invoke[wire.StringList](cmd.Context(), newClient(), service.MethodPersist, wire.StringList(args))
			if err != nil {
				return err
			}

			return printValue(cmd, ids, strings.Join(ids, "\n"))
		},
	}
)

func registerClientCommands() {
	scanCmd.Flags().BoolVar(&localScan, "local", false, "scan in this process without a running daemon")

	rootCmd.AddCommand(pingCmd, searchCmd, scanCmd, tagCmd, keywordCmd, statsCmd, persistCmd)
}

// newClient 按当前配置创建 RPC 客户端.
func newClient() *rpc.Client {
	cfg := configs.GetConfig()

	return rpc.NewClient(cfg.Server.SocketPath,
		rpc.WithTimeout(cfg.Server.ClientTimeout),
		rpc.WithTransportOptions(transport.Options{
			MaxLines:     cfg.Server.MaxMessageLines,
			MaxLineBytes: cfg.Server.MaxLineBytes,
		}),
	)
}

func annotate(cmd *cobra.Command, method string, args []string) error {
	f, err := rpc.Invoke[wire.FileRecord](cmd.Context(), newClient(), method, wire.Annotation{File: args[0], Value: args[1]})
	if err != nil {
		return err
	}

	return printFiles(cmd, wire.FileList{f})
}

func printFiles(cmd *cobra.Command, files wire.FileList) error {
	if jsonOutput {
		return printJSON(cmd, files)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			f.Path, f.Category, f.Size, strings.Join(f.Tags, ","), strings.Join(f.Keywords, ","))
	}

	return w.Flush()
}

// printValue 按 --json 选择 JSON 或纯文本输出.
func printValue(cmd *cobra.Command, v any, text string) error {
	if jsonOutput {
		return printJSON(cmd, v)
	}

	if text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}

	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	return nil
}
