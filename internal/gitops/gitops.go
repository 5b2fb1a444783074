// Package gitops handles local git hygiene around a dispatch attempt:
// naming the attempt branch, and pruning the local branch and worktree
// after the tracker-side surface has been torn down.
package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BranchName returns the branch used by an attempt: specq/<feature-path>/<spec-id-lower>.
func BranchName(featurePath, specID string) string {
	safe := strings.ToLower(specID)
	if featurePath == "" {
		return fmt.Sprintf("specq/%s", safe)
	}
	return fmt.Sprintf("specq/%s/%s", featurePath, safe)
}

// WorktreePath returns the per-attempt worktree under home:
// <home>/protected/worktrees/<spec-id-lower>.
func WorktreePath(home, specID string) string {
	return filepath.Join(home, "protected", "worktrees", strings.ToLower(specID))
}

// DeleteLocalBranch removes the branch from the repository at repoDir,
// forcing the delete so unmerged attempt work does not block cleanup.
// No-op when repoDir or branch is empty, or the branch does not exist.
func DeleteLocalBranch(ctx context.Context, repoDir, branch string) error {
	if repoDir == "" || branch == "" {
		return nil
	}
	check := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "refs/heads/"+branch)
	check.Dir = repoDir
	if err := check.Run(); err != nil {
		return nil
	}
	del := exec.CommandContext(ctx, "git", "branch", "-D", branch)
	del.Dir = repoDir
	if out, err := del.CombinedOutput(); err != nil {
		return fmt.Errorf("git branch -D %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// PruneWorktree removes the attempt's worktree directory and lets git
// forget the registration. Missing paths are a no-op.
func PruneWorktree(ctx context.Context, repoDir, worktreePath string) error {
	if worktreePath == "" {
		return nil
	}
	if _, err := os.Stat(worktreePath); err == nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return err
		}
	}
	if repoDir == "" {
		return nil
	}
	prune := exec.CommandContext(ctx, "git", "worktree", "prune")
	prune.Dir = repoDir
	if out, err := prune.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree prune: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
