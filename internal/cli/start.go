package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gooseflow/coordinator/internal/config"
	"github.com/gooseflow/coordinator/internal/daemon"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		port          int
		foreground    bool
		repoPath      string
		useWorktrees  bool
		pprofAddr     string
		envFile       string
		historyDriver string
		historyDSN    string
		mergeInterval float64
		testCommand   string
		enableOtel    bool
		apiKey        string
		mcpConfigPath string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the coordinator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			home := config.MustHomeFrom(cmd.Context())

			opts := daemon.StartOptions{
				Home:          home,
				Port:          port,
				UseWorktrees:  useWorktrees,
				PprofAddr:     pprofAddr,
				HistoryDriver: historyDriver,
				HistoryDSN:    historyDSN,
				MergeInterval: mergeInterval,
				TestCommand:   testCommand,
				EnableOtel:    enableOtel,
				MCPConfigPath: mcpConfigPath,
			}
			// Only forward a flag value when the user actually passed it, so an
			// unset --repo/--api-key doesn't shadow COORDINATOR_REPO/
			// COORDINATOR_API_KEY or config.yaml with its own default.
			if cmd.Flags().Changed("repo") {
				opts.RepoPath = repoPath
			}
			if cmd.Flags().Changed("api-key") {
				opts.APIKey = apiKey
			}

			ui := (&url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port)}).String()

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting coordinator in foreground on %s\n", ui)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "coordinator started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "control API: %s\n", ui)

			_ = openBrowser(ui)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 4173, "Port for the control API")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the git repository being orchestrated")
	cmd.Flags().BoolVar(&useWorktrees, "worktrees", true, "Isolate each workstream in its own git worktree")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")
	cmd.Flags().StringVar(&historyDriver, "history-driver", "sqlite", "Audit history store driver: sqlite or postgres")
	cmd.Flags().StringVar(&historyDSN, "history-dsn", "", "History DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().Float64Var(&mergeInterval, "merge-interval", 15, "Merge-back worker poll interval (seconds)")
	cmd.Flags().StringVar(&testCommand, "test-command", "", "Command run in a worktree before a merge-back attempt")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter, HTTP/SSE instrumentation)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require X-API-Key on the control API (or set COORDINATOR_API_KEY)")
	cmd.Flags().StringVar(&mcpConfigPath, "mcp-config", "", "YAML file listing MCP servers to forward to every workstream")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}

func openBrowser(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", u).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", u).Start()
	default:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return err
		}
		return exec.Command("xdg-open", u).Start()
	}
}
