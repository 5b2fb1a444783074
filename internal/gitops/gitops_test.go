package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestBranchName(t *testing.T) {
	t.Parallel()
	if got := BranchName("app/theme/colors", "APP-THEME-COLORS-001"); got != "specq/app/theme/colors/app-theme-colors-001" {
		t.Errorf("BranchName: got %q", got)
	}
	if got := BranchName("", "APP-NAME-001"); got != "specq/app-name-001" {
		t.Errorf("BranchName no feature: got %q", got)
	}
}

func TestWorktreePath(t *testing.T) {
	t.Parallel()
	got := WorktreePath("/home/u/.specq", "APP-NAME-001")
	want := filepath.Join("/home/u/.specq", "protected", "worktrees", "app-name-001")
	if got != want {
		t.Errorf("WorktreePath: got %q, want %q", got, want)
	}
}

func TestDeleteLocalBranchEmptyAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if err := DeleteLocalBranch(ctx, "", "b"); err != nil {
		t.Errorf("empty repo: %v", err)
	}
	if err := DeleteLocalBranch(ctx, t.TempDir(), ""); err != nil {
		t.Errorf("empty branch: %v", err)
	}
}

func TestPruneWorktreeMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if err := PruneWorktree(ctx, "", ""); err != nil {
		t.Errorf("empty: %v", err)
	}
	if err := PruneWorktree(ctx, "", filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Errorf("missing path: %v", err)
	}
}

// Exercises the real git binary when available.
func TestDeleteLocalBranchInRepo(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "f")
	run("commit", "-m", "init")
	run("branch", "specq/app-name-001")

	if err := DeleteLocalBranch(ctx, dir, "specq/app-name-001"); err != nil {
		t.Fatal(err)
	}
	// Second delete is a no-op.
	if err := DeleteLocalBranch(ctx, dir, "specq/app-name-001"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}
