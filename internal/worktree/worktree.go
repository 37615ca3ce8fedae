// Package worktree is the working-copy provider: it creates, lists, and
// destroys isolated checkouts of a source tree, each on its own named
// branch, using the host repository's native git-worktree support.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	managedDirName = ".goose-worktrees"
	branchPrefix   = "goose/"
	maxDiffBytes   = 10 * 1024 * 1024
)

// Provider manages worktrees rooted at RepoRoot.
type Provider struct {
	RepoRoot string
}

// New returns a Provider rooted at repoRoot.
func New(repoRoot string) *Provider {
	return &Provider{RepoRoot: repoRoot}
}

// Info describes one managed working copy.
type Info struct {
	Path   string
	Branch string
	Commit string
}

// IsAvailable reports whether RepoRoot is a git repository the provider can
// manage. A false result means "not a managed repository"; the coordinator
// must elide worktree creation and run workstreams in the shared checkout.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	cmd := p.gitCmd(ctx, p.RepoRoot, "rev-parse", "--is-inside-work-tree")
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Ensure creates the managed sub-directory for isolated copies and appends
// it to the repository's ignore file if not already present. Best-effort
// and not atomic across concurrent processes.
func (p *Provider) Ensure() error {
	dir := filepath.Join(p.RepoRoot, managedDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure managed dir: %w", err)
	}
	ignorePath := filepath.Join(p.RepoRoot, ".gitignore")
	entry := managedDirName + "/"

	existing, _ := os.ReadFile(ignorePath)
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()
	prefix := ""
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		prefix = "\n"
	}
	_, err = f.WriteString(prefix + entry + "\n")
	return err
}

// SanitizeName lowercases, replaces anything outside [a-z0-9-] with '-', and truncates
// to 50 characters. "Hello, World! 123" -> "hello--world--123". Exported so
// callers outside this package (e.g. the coordinator, when assigning a
// workstream's display name) can apply the identical rule.
func SanitizeName(raw string) string {
	lower := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	out := b.String()
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}

func branchName(name string) string { return branchPrefix + name }

func worktreePath(repoRoot, name string) string {
	return filepath.Join(repoRoot, managedDirName, name)
}

// Create provisions a working copy named name, branched from baseBranch
// (falling back to the repo's current branch, then the literal "main").
// Create is idempotent: an existing working copy under name is removed
// (forced) and recreated.
func (p *Provider) Create(ctx context.Context, name, baseBranch string) (Info, error) {
	safe := SanitizeName(name)
	path := worktreePath(p.RepoRoot, safe)
	branch := branchName(safe)

	if _, err := os.Stat(path); err == nil {
		_ = p.Remove(ctx, name)
	}

	if baseBranch == "" {
		baseBranch = p.currentBranch(ctx)
	}
	if baseBranch == "" {
		baseBranch = "main"
	}

	// Branch-create may fail if it already exists; ignore that failure and
	// attempt `git worktree add` against the existing branch instead.
	_ = p.gitCmd(ctx, p.RepoRoot, "branch", branch, baseBranch).Run()

	addCmd := p.gitCmd(ctx, p.RepoRoot, "worktree", "add", path, branch)
	if out, err := addCmd.CombinedOutput(); err != nil {
		return Info{}, fmt.Errorf("git worktree add: %w: %s", err, string(out))
	}

	commit, _ := p.revParse(ctx, path, "HEAD")
	return Info{Path: path, Branch: branch, Commit: commit}, nil
}

func (p *Provider) currentBranch(ctx context.Context) string {
	out, err := p.gitCmd(ctx, p.RepoRoot, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (p *Provider) revParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := p.gitCmd(ctx, dir, "rev-parse", ref).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Remove destroys the working copy named name, force-removing it and
// pruning the worktree registration. Errors are swallowed by callers that
// treat removal as best-effort (per the working-copy failure semantics:
// every operation returns a falsy result rather than throwing).
func (p *Provider) Remove(ctx context.Context, name string) error {
	safe := SanitizeName(name)
	path := worktreePath(p.RepoRoot, safe)
	_ = p.gitCmd(ctx, p.RepoRoot, "worktree", "remove", "--force", path).Run()
	if _, err := os.Stat(path); err == nil {
		_ = os.RemoveAll(path)
	}
	_ = p.gitCmd(ctx, p.RepoRoot, "worktree", "prune").Run()
	return nil
}

// List returns all managed working copies currently registered with git.
func (p *Provider) List(ctx context.Context) ([]Info, error) {
	out, err := p.gitCmd(ctx, p.RepoRoot, "worktree", "list", "--porcelain").Output()
	if err != nil {
		return nil, nil
	}
	managedRoot := filepath.Join(p.RepoRoot, managedDirName) + string(filepath.Separator)

	var infos []Info
	var cur Info
	flush := func() {
		if cur.Path != "" && strings.HasPrefix(cur.Path+string(filepath.Separator), managedRoot) {
			infos = append(infos, cur)
		}
		cur = Info{}
	}
	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	flush()
	return infos, nil
}

// Diff returns the textual diff of the working copy at path against its
// HEAD commit (uncommitted changes), bounded to 10 MiB; larger diffs yield an empty string
// rather than an error.
func (p *Provider) Diff(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}
	cmd := p.gitCmd(ctx, path, "diff", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	if len(out) > maxDiffBytes {
		return ""
	}
	return string(out)
}

// Status returns `git status --short` for the working copy at path.
func (p *Provider) Status(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}
	out, err := p.gitCmd(ctx, path, "status", "--short").Output()
	if err != nil {
		return ""
	}
	return string(out)
}

// Commit stages and commits all changes in the working copy at path with
// the given message and optional author ("Name <email>"). Returns false
// (never an error) if the commit cannot complete, e.g. nothing to commit
// or a non-zero VCS exit.
func (p *Provider) Commit(ctx context.Context, path, message, author string) bool {
	if path == "" || message == "" {
		return false
	}
	if err := p.gitCmd(ctx, path, "add", "-A").Run(); err != nil {
		return false
	}
	args := []string{"commit", "-m", message}
	if author != "" {
		args = append(args, "--author", author)
	}
	cmd := p.gitCmd(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return cmd.Run() == nil
}

// RunTestCommand runs testCmd (via the host shell) in the working copy at
// path. An empty testCmd is a no-op success.
func (p *Provider) RunTestCommand(ctx context.Context, path, testCmd string) error {
	if path == "" || testCmd == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", testCmd)
	cmd.Dir = path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("test command: %w: %s", err, string(out))
	}
	return nil
}

// MergeFastForward attempts `git merge --ff-only branch` in the repo root.
// It never rebases or resolves conflicts; a non-fast-forward history
// returns an error and leaves the repo root untouched.
func (p *Provider) MergeFastForward(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("merge: branch is required")
	}
	cmd := p.gitCmd(ctx, p.RepoRoot, "merge", "--ff-only", branch)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git merge --ff-only %s: %w: %s", branch, err, string(out))
	}
	return nil
}

func (p *Provider) gitCmd(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd
}
