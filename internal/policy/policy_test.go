package policy

import (
	"testing"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

func TestAllowList_DecideAllowed(t *testing.T) {
	p := AllowList{Allow: []string{"read file"}}
	opts := []coordinator.PermissionOption{
		{ID: "a", Kind: "allow_once"},
		{ID: "r", Kind: "reject_once"},
	}
	id, ok := p.Decide("read file src/main.go", nil, opts)
	if !ok || id != "a" {
		t.Fatalf("Decide = %q, %v; want a, true", id, ok)
	}
}

func TestAllowList_DecidePrefersAllowAlways(t *testing.T) {
	p := AllowList{Allow: []string{"read file"}}
	opts := []coordinator.PermissionOption{
		{ID: "once", Kind: "allow_once"},
		{ID: "always", Kind: "allow_always"},
	}
	id, ok := p.Decide("read file src/main.go", nil, opts)
	if !ok || id != "always" {
		t.Fatalf("Decide = %q, %v; want always, true", id, ok)
	}
}

func TestAllowList_DecideDenyOverridesAllow(t *testing.T) {
	p := AllowList{Allow: []string{"write"}, Deny: []string{"write file"}}
	opts := []coordinator.PermissionOption{{ID: "a", Kind: "allow_once"}}
	_, ok := p.Decide("write file /etc/passwd", nil, opts)
	if ok {
		t.Fatal("expected deny to block auto-approval")
	}
}

func TestAllowList_DecideNoMatchFallsThrough(t *testing.T) {
	p := AllowList{Allow: []string{"read file"}}
	opts := []coordinator.PermissionOption{{ID: "a", Kind: "allow_once"}}
	_, ok := p.Decide("execute shell command", nil, opts)
	if ok {
		t.Fatal("expected no match to fall through to a human decision")
	}
}
