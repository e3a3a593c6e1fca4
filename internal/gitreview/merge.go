package gitreview

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// MergeBranch merges, squashes, or rebases a workspace branch back onto
// base, running in the primary repo (repoPath), locating the worktree for
// Rebase via "git worktree list --porcelain".
func MergeBranch(repoPath, worktreeBranch, baseBranch string, strategy MergeStrategy, commitMessage string) (*MergeResult, error) {
	switch strategy {
	case MergeStrategyMerge:
		return mergeStrategyMerge(repoPath, worktreeBranch, baseBranch)
	case MergeStrategySquash:
		return mergeStrategySquash(repoPath, worktreeBranch, baseBranch, commitMessage)
	case MergeStrategyRebase:
		return mergeStrategyRebase(repoPath, worktreeBranch, baseBranch)
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
}

func mergeStrategyMerge(repoPath, worktreeBranch, baseBranch string) (*MergeResult, error) {
	if _, err := git(repoPath, "checkout", baseBranch); err != nil {
		return nil, err
	}

	cmd := exec.Command("git", "merge", worktreeBranch)
	cmd.Dir = repoPath
	if err := cmd.Run(); err == nil {
		sha, err := git(repoPath, "rev-parse", "HEAD")
		if err != nil {
			return nil, err
		}
		return &MergeResult{
			Success:  true,
			MergeSHA: strings.TrimSpace(sha),
			Message:  fmt.Sprintf("Merged %s into %s", worktreeBranch, baseBranch),
		}, nil
	}

	conflicts := collectConflicts(repoPath)
	_ = runQuiet(repoPath, "merge", "--abort")
	return &MergeResult{
		Success:   false,
		Conflicts: conflicts,
		Message:   "Merge failed due to conflicts",
	}, nil
}

func mergeStrategySquash(repoPath, worktreeBranch, baseBranch, commitMessage string) (*MergeResult, error) {
	if _, err := git(repoPath, "checkout", baseBranch); err != nil {
		return nil, err
	}

	squashCmd := exec.Command("git", "merge", "--squash", worktreeBranch)
	squashCmd.Dir = repoPath
	if err := squashCmd.Run(); err != nil {
		conflicts := collectConflicts(repoPath)
		_ = runQuiet(repoPath, "reset", "HEAD")
		_ = runQuiet(repoPath, "checkout", ".")
		return &MergeResult{
			Success:   false,
			Conflicts: conflicts,
			Message:   "Squash merge failed due to conflicts",
		}, nil
	}

	msg := commitMessage
	if msg == "" {
		msg = fmt.Sprintf("Squash merge %s", worktreeBranch)
	}
	commitCmd := exec.Command("git", "commit", "-m", msg)
	commitCmd.Dir = repoPath
	var stderr strings.Builder
	commitCmd.Stderr = &stderr
	if err := commitCmd.Run(); err != nil {
		_ = runQuiet(repoPath, "reset", "HEAD")
		return nil, fmt.Errorf("commit after squash failed: %s", strings.TrimSpace(stderr.String()))
	}

	sha, err := git(repoPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		Success:  true,
		MergeSHA: strings.TrimSpace(sha),
		Message:  fmt.Sprintf("Squash-merged %s into %s", worktreeBranch, baseBranch),
	}, nil
}

func mergeStrategyRebase(repoPath, worktreeBranch, baseBranch string) (*MergeResult, error) {
	worktreeList, err := git(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	wtPath, ok := findWorktreePath(worktreeList, worktreeBranch)
	if !ok {
		return nil, fmt.Errorf("could not find worktree for branch %s", worktreeBranch)
	}

	rebaseCmd := exec.Command("git", "rebase", baseBranch)
	rebaseCmd.Dir = wtPath
	if err := rebaseCmd.Run(); err != nil {
		_ = runQuiet(wtPath, "rebase", "--abort")
		return &MergeResult{
			Success:   false,
			Conflicts: collectConflicts(wtPath),
			Message:   "Rebase failed due to conflicts",
		}, nil
	}

	if _, err := git(repoPath, "checkout", baseBranch); err != nil {
		return nil, err
	}
	if _, err := git(repoPath, "merge", "--ff-only", worktreeBranch); err != nil {
		return nil, err
	}

	sha, err := git(repoPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		Success:  true,
		MergeSHA: strings.TrimSpace(sha),
		Message:  fmt.Sprintf("Rebased and merged %s into %s", worktreeBranch, baseBranch),
	}, nil
}

func findWorktreePath(porcelainOutput, branch string) (string, bool) {
	var current string
	for _, line := range strings.Split(porcelainOutput, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			current = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch ") && strings.Contains(line, branch):
			return current, current != ""
		case line == "":
			current = ""
		}
	}
	return "", false
}

func collectConflicts(repoPath string) []string {
	out := gitAllowEmpty(repoPath, "diff", "--name-only", "--diff-filter=U")
	return splitNonEmptyLines(out)
}

func runQuiet(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	return cmd.Run()
}

// DiscardWorktree removes a worktree and its branch, falling back to a
// recursive directory removal if the porcelain remove fails.
func DiscardWorktree(repoPath, worktreePath, branchName string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoPath
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "worktree remove warning: %s\n", strings.TrimSpace(stderr.String()))
		_ = os.RemoveAll(worktreePath)
	}
	_ = runQuiet(repoPath, "branch", "-D", branchName)
	return nil
}
