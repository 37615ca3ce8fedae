package mcpservers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

func TestValidateRejectsMissingName(t *testing.T) {
	err := Validate([]coordinator.MCPServerConfig{{Command: "npx"}})
	if err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestValidateRejectsMissingCommand(t *testing.T) {
	err := Validate([]coordinator.MCPServerConfig{{Name: "fs"}})
	if err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	servers := []coordinator.MCPServerConfig{
		{Name: "fs", Command: "npx"},
		{Name: "fs", Command: "uvx"},
	}
	if err := Validate(servers); err == nil {
		t.Fatal("expected error for duplicate names")
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	servers := []coordinator.MCPServerConfig{
		{Name: "fs", Command: "npx", Args: []string{"-y", "mcp-fs"}},
	}
	if err := Validate(servers); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNormalizeFillsNilSlicesAndMaps(t *testing.T) {
	out := Normalize([]coordinator.MCPServerConfig{{Name: "fs", Command: "npx"}})
	if out[0].Args == nil || out[0].Env == nil {
		t.Fatalf("expected non-nil Args/Env, got %+v", out[0])
	}
}

func TestLoadFileParsesNormalizesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	const doc = `
- name: fs
  command: npx
  args: ["-y", "mcp-fs"]
  env:
    ROOT: /repo
- name: fetch
  command: uvx
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	servers, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len(servers) = %d, want 2", len(servers))
	}
	if servers[0].Name != "fs" || servers[0].Env["ROOT"] != "/repo" {
		t.Fatalf("servers[0] = %+v", servers[0])
	}
	if servers[1].Args == nil {
		t.Fatalf("expected Normalize to fill nil Args, got %+v", servers[1])
	}
}

func TestLoadFileRejectsInvalidServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	const doc = `
- name: fs
  command: npx
- name: fs
  command: uvx
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for duplicate server name")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
