package cli

import (
	"github.com/gooseflow/coordinator/internal/config"
	"github.com/gooseflow/coordinator/internal/daemon"
	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	var (
		port          int
		repoPath      string
		useWorktrees  bool
		pprofAddr     string
		enableOtel    bool
		historyDriver string
		historyDSN    string
		mergeInterval float64
		testCommand   string
		apiKey        string
		mcpConfigPath string
	)

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run the coordinator daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			opts := daemon.StartOptions{
				Home:          home,
				Port:          port,
				UseWorktrees:  useWorktrees,
				PprofAddr:     pprofAddr,
				EnableOtel:    enableOtel,
				HistoryDriver: historyDriver,
				HistoryDSN:    historyDSN,
				MergeInterval: mergeInterval,
				TestCommand:   testCommand,
				MCPConfigPath: mcpConfigPath,
			}
			if cmd.Flags().Changed("repo") {
				opts.RepoPath = repoPath
			}
			if cmd.Flags().Changed("api-key") {
				opts.APIKey = apiKey
			}
			return daemon.StartForeground(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&port, "port", 4173, "Port for the control API")
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository being orchestrated")
	cmd.Flags().BoolVar(&useWorktrees, "worktrees", true, "Isolate each workstream in its own git worktree")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics")
	cmd.Flags().StringVar(&historyDriver, "history-driver", "sqlite", "Audit history store driver: sqlite or postgres")
	cmd.Flags().StringVar(&historyDSN, "history-dsn", "", "History DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().Float64Var(&mergeInterval, "merge-interval", 15, "Merge-back worker poll interval (seconds)")
	cmd.Flags().StringVar(&testCommand, "test-command", "", "Command run in a worktree before a merge-back attempt")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require X-API-Key on the control API (or set COORDINATOR_API_KEY)")
	cmd.Flags().StringVar(&mcpConfigPath, "mcp-config", "", "YAML file listing MCP servers to forward to every workstream")

	return cmd
}
