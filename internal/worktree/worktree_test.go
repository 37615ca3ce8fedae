package worktree

import (
	"strings"
	"testing"
)

func TestSanitizeNameBoundary(t *testing.T) {
	got := SanitizeName("Hello, World! 123")
	want := "hello--world--123"
	if got != want {
		t.Fatalf("SanitizeName = %q, want %q", got, want)
	}
}

func TestSanitizeNameTruncation(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := SanitizeName(long)
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
}

func TestBranchAndPathNaming(t *testing.T) {
	if got := branchName("fix-x"); got != "goose/fix-x" {
		t.Fatalf("branchName = %q", got)
	}
	if got := worktreePath("/repo", "fix-x"); got != "/repo/.goose-worktrees/fix-x" {
		t.Fatalf("worktreePath = %q", got)
	}
}

func TestDiffEmptyPathReturnsEmpty(t *testing.T) {
	p := &Provider{RepoRoot: t.TempDir()}
	// Diff with no working-copy path returns an empty string rather than
	// an error, without invoking git.
	if got := p.Diff(nil, ""); got != "" {
		t.Fatalf("Diff(empty path) = %q, want empty", got)
	}
}
