package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/kernelerr"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := execGit(dir, "init", "-q", "-b", "main"); err != nil {
		t.Fatalf("git init: %v", err)
	}
	if _, err := execGit(dir, "config", "user.email", "test@example.com"); err != nil {
		t.Fatalf("git config email: %v", err)
	}
	if _, err := execGit(dir, "config", "user.name", "test"); err != nil {
		t.Fatalf("git config name: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	if _, err := execGit(dir, "add", "."); err != nil {
		t.Fatalf("git add: %v", err)
	}
	if _, err := execGit(dir, "commit", "-q", "-m", "init"); err != nil {
		t.Fatalf("git commit: %v", err)
	}
	return dir
}

func newManager() *Manager {
	return New(zerolog.Nop())
}

func TestCreateWorkspaceSucceeds(t *testing.T) {
	repo := initRepo(t)
	mgr := newManager()
	worktreeDir := filepath.Join(repo, ".worktrees")

	info, err := mgr.Create(repo, "myrepo", "feature", "claude", worktreeDir, "main")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.State != StateRunning {
		t.Fatalf("state = %v, want Running", info.State)
	}
	if _, err := os.Stat(info.WorktreePath); err != nil {
		t.Fatalf("worktree dir missing: %v", err)
	}
	if !isDescendant(info.RepoPath, info.WorktreePath) {
		t.Fatalf("worktree path %q does not descend from repo %q", info.WorktreePath, info.RepoPath)
	}
	if len(info.ID) != 36 {
		t.Fatalf("id = %q, want uuid-shaped", info.ID)
	}
	wantBranch := "feature-" + info.ID[:8]
	if info.Branch != wantBranch {
		t.Fatalf("branch = %q, want %q", info.Branch, wantBranch)
	}
}

func TestCreateNonGitRepoFails(t *testing.T) {
	dir := t.TempDir()
	mgr := newManager()
	_, err := mgr.Create(dir, "alias", "feature", "claude", filepath.Join(dir, "wt"), "main")
	if !kernelerr.Has(err, kernelerr.NotAGitRepo) {
		t.Fatalf("err = %v, want NotAGitRepo", err)
	}
}

func TestCreateRejectsWorktreeDirOutsideRepo(t *testing.T) {
	repo := initRepo(t)
	other := t.TempDir()
	mgr := newManager()

	_, err := mgr.Create(repo, "alias", "feature", "claude", filepath.Join(other, "worktrees"), "main")
	if !kernelerr.Has(err, kernelerr.PathEscape) {
		t.Fatalf("err = %v, want PathEscape", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	repo := initRepo(t)
	mgr := newManager()
	info, err := mgr.Create(repo, "alias", "feature", "claude", filepath.Join(repo, "wt"), "main")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Stop(info.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := mgr.Stop(info.ID); err != nil {
		t.Fatalf("Stop (again): %v", err)
	}
	got, _ := mgr.Get(info.ID)
	if got.State != StateStopped {
		t.Fatalf("state = %v, want Stopped", got.State)
	}
}

func TestRemoveRunningWorkspaceFails(t *testing.T) {
	repo := initRepo(t)
	mgr := newManager()
	info, err := mgr.Create(repo, "alias", "feature", "claude", filepath.Join(repo, "wt"), "main")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = mgr.Remove(info.ID)
	if !kernelerr.Has(err, kernelerr.RunningWorkspace) {
		t.Fatalf("err = %v, want RunningWorkspace", err)
	}
}

func TestRemoveAfterStopSucceeds(t *testing.T) {
	repo := initRepo(t)
	mgr := newManager()
	info, err := mgr.Create(repo, "alias", "feature", "claude", filepath.Join(repo, "wt"), "main")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Stop(info.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := mgr.Remove(info.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := mgr.Get(info.ID); !kernelerr.Has(err, kernelerr.NotFound) {
		t.Fatalf("Get after remove err = %v, want NotFound", err)
	}
}

func TestListFiltersByRepoPath(t *testing.T) {
	repoA := initRepo(t)
	repoB := initRepo(t)
	mgr := newManager()
	if _, err := mgr.Create(repoA, "a", "feature", "claude", filepath.Join(repoA, "wt-a"), "main"); err != nil {
		t.Fatalf("Create A: %v", err)
	}
	if _, err := mgr.Create(repoB, "b", "feature", "claude", filepath.Join(repoB, "wt-b"), "main"); err != nil {
		t.Fatalf("Create B: %v", err)
	}
	got := mgr.List(repoA)
	if len(got) != 1 || got[0].RepoPath != mustCanonical(t, repoA) {
		t.Fatalf("List(repoA) = %+v", got)
	}
}

func mustCanonical(t *testing.T, p string) string {
	t.Helper()
	c, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return c
}
