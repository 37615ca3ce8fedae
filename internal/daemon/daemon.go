package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gooseflow/coordinator/internal/capabilities"
	"github.com/gooseflow/coordinator/internal/config"
	"github.com/gooseflow/coordinator/internal/controlapi"
	"github.com/gooseflow/coordinator/internal/coordinator"
	"github.com/gooseflow/coordinator/internal/history"
	"github.com/gooseflow/coordinator/internal/identity"
	"github.com/gooseflow/coordinator/internal/mcpservers"
	"github.com/gooseflow/coordinator/internal/mergequeue"
	"github.com/gooseflow/coordinator/internal/otel"
	"github.com/gooseflow/coordinator/internal/policy"
	"github.com/gooseflow/coordinator/internal/transcript"
	"github.com/gooseflow/coordinator/internal/worktree"
)

var errNotRunning = errors.New("coordinator daemon is not running")

// StartForeground runs the daemon in the calling process: it wires the
// coordinator to its control API, worktree provider, history store, and
// background merge-back worker, then serves until ctx is cancelled.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = 4173
	}

	// Ensure dirs exist.
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return err
	}

	// Acquire singleton lock (released on exit).
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	// Resolve layered configuration: explicit flag values in opts (present
	// only when the CLI flag was actually passed) take precedence over
	// COORDINATOR_* env vars, which take precedence over config.yaml under
	// home, which takes precedence over built-in defaults.
	overrides := map[string]string{}
	if opts.RepoPath != "" {
		overrides["repoPath"] = opts.RepoPath
	}
	if opts.APIKey != "" {
		overrides["apiKey"] = opts.APIKey
	}
	cfg, err := config.Load(opts.Home, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mcpServers := cfg.MCPServers
	if opts.MCPConfigPath != "" {
		fileServers, err := mcpservers.LoadFile(opts.MCPConfigPath)
		if err != nil {
			return fmt.Errorf("load mcp config: %w", err)
		}
		mcpServers = append(mcpServers, fileServers...)
	}
	mcpServers = mcpservers.Normalize(mcpServers)
	if err := mcpservers.Validate(mcpServers); err != nil {
		return fmt.Errorf("mcp servers: %w", err)
	}

	var approvalPolicy coordinator.AutoApprovalPolicy
	if len(cfg.AutoApprove.Allow) > 0 || len(cfg.AutoApprove.Deny) > 0 {
		approvalPolicy = policy.AllowList{Allow: cfg.AutoApprove.Allow, Deny: cfg.AutoApprove.Deny}
	}

	// Optional pprof.
	startPprof(opts.PprofAddr)

	histStore, err := history.Open(opts.HistoryDriver, opts.Home, opts.HistoryDSN)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = histStore.Close() }()

	// Write PID + addr files.
	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	_ = os.WriteFile(addrPath(opts.Home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	// Early port check for clearer error.
	if err := checkPortAvailable(opts.Port); err != nil {
		return err
	}

	wt := worktree.New(cfg.RepoPath)
	if opts.UseWorktrees {
		if err := wt.Ensure(); err != nil {
			slog.Warn("daemon: worktree setup failed, continuing without isolation", "err", err)
		}
	}

	notifiers := capabilities.NewRegistry()
	if url := os.Getenv("COORDINATOR_SLACK_WEBHOOK"); url != "" {
		notifiers.Register(capabilities.SlackWebhook{WebhookURL: url})
	}
	if token := os.Getenv("COORDINATOR_GITHUB_TOKEN"); token != "" {
		notifiers.Register(capabilities.GitHubNotifier{
			Token:     token,
			OwnerRepo: os.Getenv("COORDINATOR_GITHUB_REPO"),
		})
	}

	coord := coordinator.New(coordinator.Options{
		ServerBaseURL: cfg.ServerBaseURL,
		RepoPath:      cfg.RepoPath,
		UseWorktrees:  opts.UseWorktrees,
		Worktree:      wt,
		Identity:      identity.Resolver,
		History:       histStore,
		Notifier:      notifiers,
		Transcript:    transcript.New(transcriptsDir(opts.Home)),
		Metrics:       otel.Recorder{},
		Policy:        approvalPolicy,
		MCPServers:    mcpServers,
	})

	srvOpts := controlapi.ServerOptions{
		Addr:          addr,
		APIKey:        cfg.APIKey,
		OnSubscribe:   otel.AddSSEConnection,
		OnUnsubscribe: otel.RemoveSSEConnection,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "coordinator")
		if err != nil {
			slog.Warn("otel init failed, metrics disabled", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
			if err := otel.InitMetrics(ctx); err != nil {
				slog.Warn("otel metrics init failed", "err", err)
			}
			otel.SetWorkstreamCountFunc(func() map[coordinator.State]int64 {
				counts := make(map[coordinator.State]int64)
				for _, snap := range coord.GetAllWorkstreams() {
					counts[snap.State]++
				}
				return counts
			})
		}
	}
	app := controlapi.NewApp(srvOpts, coord)

	slog.Info("daemon starting", "addr", addr, "home", opts.Home)
	errCh := make(chan error, 1)
	go func() {
		// Merge worker scans completed workstreams and fast-forward merges
		// their branch back, independently of the HTTP server.
		go (&mergequeue.Worker{
			Coordinator: coord,
			Worktree:    wt,
			TestCommand: opts.TestCommand,
			Interval:    time.Duration(opts.MergeInterval * float64(time.Second)),
		}).Run(ctx)
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// StartBackground launches the daemon as a detached child process and
// waits briefly for it to report itself running.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	// Ensure dirs exist before starting.
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("coordinator daemon already running (pid %d)", st.PID)
	}

	logFile := filepath.Join(protectedDir(opts.Home), "daemon.log")
	stderr, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Port),
	}
	if opts.RepoPath != "" {
		args = append(args, "--repo", opts.RepoPath)
	}
	args = append(args, "--worktrees="+strconv.FormatBool(opts.UseWorktrees))
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.APIKey != "" {
		args = append(args, "--api-key", opts.APIKey)
	}
	if opts.MCPConfigPath != "" {
		args = append(args, "--mcp-config", opts.MCPConfigPath)
	}
	args = append(args, "--otel="+strconv.FormatBool(opts.EnableOtel))
	if opts.HistoryDriver != "" {
		args = append(args, "--history-driver", opts.HistoryDriver)
	}
	if opts.HistoryDSN != "" {
		args = append(args, "--history-dsn", opts.HistoryDSN)
	}
	if opts.MergeInterval > 0 {
		args = append(args, "--merge-interval", strconv.FormatFloat(opts.MergeInterval, 'f', -1, 64))
	}
	if opts.TestCommand != "" {
		args = append(args, "--test-command", opts.TestCommand)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for pid file to appear or process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Fallback to started pid even if status isn't ready yet.
	return cmd.Process.Pid, nil
}

// Stop signals a running daemon to shut down and waits for it to exit.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

// Status reports whether a daemon is running under home, its PID, and its
// listen address.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pidStr := strings.TrimSpace(string(pb))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
