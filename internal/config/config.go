package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

// Config is the coordinator's resolved configuration: serverBaseUrl,
// repoPath, and useWorktrees, plus the listen address, API key, MCP
// server list, and auto-approval allow/deny rules.
type Config struct {
	ServerBaseURL string                        `mapstructure:"serverBaseUrl"`
	RepoPath      string                        `mapstructure:"repoPath"`
	UseWorktrees  bool                          `mapstructure:"useWorktrees"`
	ListenAddr    string                        `mapstructure:"listenAddr"`
	APIKey        string                        `mapstructure:"apiKey"`
	MCPServers    []coordinator.MCPServerConfig `mapstructure:"mcpServers"`
	AutoApprove   AutoApproveConfig             `mapstructure:"autoApprove"`
}

// AutoApproveConfig is the allow/deny-by-tool-title rule set consulted
// before a permission request blocks on a human decision.
type AutoApproveConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// Load resolves configuration in order: explicit flag values passed in
// overrides > environment variables (COORDINATOR_*) > config.yaml under
// home > built-in defaults.
func Load(home string, overrides map[string]string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)

	v.SetDefault("useWorktrees", true)
	v.SetDefault("listenAddr", "0.0.0.0:4173")
	v.SetDefault("repoPath", ".")

	v.SetEnvPrefix("COORDINATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("serverBaseUrl", "COORDINATOR_SERVER_URL")
	_ = v.BindEnv("repoPath", "COORDINATOR_REPO")
	_ = v.BindEnv("apiKey", "COORDINATOR_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for key, val := range overrides {
		if val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
