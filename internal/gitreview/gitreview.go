// Package gitreview computes status/diff/file-at-version against a
// detected base branch and performs merge/squash/rebase with conflict
// reporting. It is grounded on original_source/git_ops.rs, translated to
// Go idioms and combined with a retrying git subprocess wrapper.
package gitreview

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FileStatus is the status of one changed file relative to a base.
type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusModified FileStatus = "modified"
	StatusDeleted  FileStatus = "deleted"
	StatusRenamed  FileStatus = "renamed"
	StatusCopied   FileStatus = "copied"
)

// FileChange is one entry of a WorktreeStatus.files list.
type FileChange struct {
	Path      string
	OldPath   *string
	Status    FileStatus
	Additions int
	Deletions int
	Binary    bool
}

// DiffLine is one line of a parsed hunk.
type DiffLine struct {
	Kind      string // "context", "add", "delete"
	OldLineno *int
	NewLineno *int
	Content   string
}

// DiffHunk is one @@ ... @@ section of a unified diff.
type DiffHunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Header   string
	Lines    []DiffLine
}

// FileDiff is the fully parsed diff for one file.
type FileDiff struct {
	Path      string
	OldPath   *string
	Status    FileStatus
	Binary    bool
	Hunks     []DiffHunk
	Additions int
	Deletions int
}

// WorktreeStatus is the review summary for a workspace.
type WorktreeStatus struct {
	WorkspaceID     string
	BaseBranch      string
	HeadSHA         string
	BaseSHA         string
	Ahead           int
	Behind          int
	FilesChanged    int
	TotalAdditions  int
	TotalDeletions  int
	Files           []FileChange
	HasConflicts    bool
	ConflictFiles   []string
}

// MergeStrategy selects how a workspace branch is merged back.
type MergeStrategy string

const (
	MergeStrategyMerge  MergeStrategy = "merge"
	MergeStrategySquash MergeStrategy = "squash"
	MergeStrategyRebase MergeStrategy = "rebase"
)

// MergeResult is the outcome of a merge_branch call.
type MergeResult struct {
	Success  bool
	MergeSHA string
	Conflicts []string
	Message  string
}

// FileVersion selects which side of a diff to read a file from.
type FileVersion string

const (
	FileVersionBase    FileVersion = "base"
	FileVersionWorking FileVersion = "working"
)

// git runs a git command in dir and returns stdout, retrying transient
// lock-contention failures with exponential backoff (same policy as the
// teacher's internal/git, implemented with the corpus's backoff library).
func git(dir string, args ...string) (string, error) {
	var out string
	op := func() error {
		o, err := runGit(dir, args...)
		out = o
		if err == nil {
			return nil
		}
		if isTransientGitError(err.Error()) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 3 * time.Second
	err := backoff.Retry(op, b)
	return out, err
}

// gitAllowEmpty runs git and returns stdout even on nonzero exit, used for
// commands whose "failure" (e.g. empty diff) is expected and not an error.
func gitAllowEmpty(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, _ := cmd.Output()
	return string(out)
}

var runGit = func(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

func isTransientGitError(msg string) bool {
	for _, marker := range []string{"index.lock", "unable to create", ".git/HEAD.lock"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Base branch detection lives once, in internal/workspace, which records
// it on the Info at workspace-creation time; every gitreview entry point
// here takes that recorded value as a parameter instead of re-detecting it.

func readFile(worktreePath, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(worktreePath, path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func resolveMergeBase(worktreePath, baseBranch string) (string, error) {
	sha, err := git(worktreePath, "merge-base", "HEAD", baseBranch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sha), nil
}
