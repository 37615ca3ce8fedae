// Package mcpservers validates and normalizes the MCP server descriptors
// forwarded into each workstream's session/new handshake.
package mcpservers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

// LoadFile reads a standalone MCP server descriptor file (YAML, a top-level
// list of {name, command, args, env} entries) such as the one pointed to by
// the daemon's --mcp-config flag, separate from the servers declared inline
// in config.yaml's mcpServers key. The result is normalized and validated
// before being returned.
func LoadFile(path string) ([]coordinator.MCPServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config %s: %w", path, err)
	}
	var servers []coordinator.MCPServerConfig
	if err := yaml.Unmarshal(raw, &servers); err != nil {
		return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
	}
	servers = Normalize(servers)
	if err := Validate(servers); err != nil {
		return nil, fmt.Errorf("mcp config %s: %w", path, err)
	}
	return servers, nil
}

// Validate checks that every server has a unique, non-empty name and a
// non-empty command, returning the first error found.
func Validate(servers []coordinator.MCPServerConfig) error {
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s.Name == "" {
			return fmt.Errorf("mcp server: name is required")
		}
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: command is required", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("mcp server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Normalize returns servers with nil Args/Env replaced by empty, non-nil
// values, so marshaled session/new params always carry [] / {} rather than
// null for a server that declares neither.
func Normalize(servers []coordinator.MCPServerConfig) []coordinator.MCPServerConfig {
	out := make([]coordinator.MCPServerConfig, len(servers))
	for i, s := range servers {
		if s.Args == nil {
			s.Args = []string{}
		}
		if s.Env == nil {
			s.Env = map[string]string{}
		}
		out[i] = s
	}
	return out
}
