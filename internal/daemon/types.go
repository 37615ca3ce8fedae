package daemon

// StartOptions configures the daemon: home directory, listen port,
// working-copy and history backend choices, and the ambient feature
// toggles (pprof, OpenTelemetry).
type StartOptions struct {
	Home string
	Port int

	// RepoPath, set only when the --repo flag was explicitly passed, takes
	// precedence over COORDINATOR_REPO and config.yaml's repoPath. Left
	// empty, config.Load resolves it from the environment, config file, or
	// its own "." default.
	RepoPath     string
	UseWorktrees bool

	// APIKey, set only when the --api-key flag was explicitly passed, takes
	// precedence over COORDINATOR_API_KEY and config.yaml's apiKey. Left
	// empty, config.Load resolves it from the environment or config file.
	APIKey string

	// MCPConfigPath, if set, points at a standalone MCP server descriptor
	// file (see mcpservers.LoadFile) whose servers are appended to
	// config.yaml's mcpServers; a name declared in both is rejected.
	MCPConfigPath string

	HistoryDriver string // "sqlite" (default) or "postgres"
	HistoryDSN    string // for postgres

	MergeInterval float64 // seconds; 0 means the merge worker's default
	TestCommand   string  // run in the worktree before a merge-back attempt

	PprofAddr  string
	EnableOtel bool
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
