// Package workspace manages the lifecycle of isolated git worktrees, one
// per agent session, using a retrying git-subprocess idiom for worktree
// add/remove operations.
package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/kernelerr"
)

// State is a workspace lifecycle state.
type State string

const (
	StateCreating State = "creating"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateCleaning State = "cleaning"
)

// Info is the persisted-in-memory record for one workspace.
type Info struct {
	ID           string
	RepoPath     string // canonical
	RepoAlias    string
	Branch       string
	WorktreePath string // canonical
	Agent        string
	State        State
	BaseBranch   string
}

// Manager owns the workspace registry. Operations hold the manager's
// mutex only while reading or updating the registry; no lock is ever
// held across a git subprocess call's blocking wait — callers snapshot what they need, unlock, then run
// git, then re-lock briefly to update state.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Info
	log        zerolog.Logger
}

// New returns an empty workspace manager.
func New(log zerolog.Logger) *Manager {
	return &Manager{
		workspaces: make(map[string]*Info),
		log:        log.With().Str("subsystem", "workspace").Logger(),
	}
}

// DetectBaseBranch asks git for the remote HEAD symbolic ref, defaulting to
// "main" when it cannot be resolved (detached remote, no network, etc).
func DetectBaseBranch(repoPath string) string {
	out, err := runGit(repoPath, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main"
	}
	branch := strings.TrimSpace(out)
	return strings.TrimPrefix(branch, "origin/")
}

// Create canonicalizes repoPath, verifies it is a git repo, allocates a
// fresh id, and creates a worktree under worktreeDir named
// "<branch>-<short_id>". If baseBranch is empty it is resolved via
// DetectBaseBranch.
func (m *Manager) Create(repoPath, alias, branch, agentName, worktreeDir, baseBranch string) (*Info, error) {
	canonicalRepo, err := filepath.EvalSymlinks(repoPath)
	if err != nil {
		canonicalRepo, err = filepath.Abs(repoPath)
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.InvalidPath, err, "resolving repo path %q", repoPath)
		}
	}
	if _, err := os.Stat(filepath.Join(canonicalRepo, ".git")); err != nil {
		return nil, kernelerr.New(kernelerr.NotAGitRepo, "%q has no .git", canonicalRepo)
	}

	id := uuid.NewString()
	shortID := id[:8]
	worktreeName := fmt.Sprintf("%s-%s", branch, shortID)

	if err := os.MkdirAll(worktreeDir, 0755); err != nil {
		return nil, kernelerr.Wrap(kernelerr.IoError, err, "creating worktree parent dir")
	}

	rawWorktreePath := filepath.Join(worktreeDir, worktreeName)

	canonicalParent, err := filepath.EvalSymlinks(worktreeDir)
	if err != nil {
		canonicalParent = worktreeDir
	}
	canonicalWorktreePath := filepath.Join(canonicalParent, worktreeName)

	if !isDescendant(canonicalRepo, canonicalWorktreePath) {
		return nil, kernelerr.New(kernelerr.PathEscape, "worktree path %q escapes repo %q", canonicalWorktreePath, canonicalRepo)
	}

	if baseBranch == "" {
		baseBranch = DetectBaseBranch(canonicalRepo)
	}

	info := &Info{
		ID:           id,
		RepoPath:     canonicalRepo,
		RepoAlias:    alias,
		Branch:       worktreeName,
		WorktreePath: canonicalWorktreePath,
		Agent:        agentName,
		State:        StateCreating,
		BaseBranch:   baseBranch,
	}

	m.mu.Lock()
	m.workspaces[id] = info
	m.mu.Unlock()

	if _, err := runGit(canonicalRepo, "worktree", "add", "-b", worktreeName, rawWorktreePath, baseBranch); err != nil {
		m.mu.Lock()
		delete(m.workspaces, id)
		m.mu.Unlock()
		return nil, kernelerr.Wrap(kernelerr.GitFailure, err, "creating worktree for %q", id)
	}

	m.mu.Lock()
	info.State = StateRunning
	m.mu.Unlock()

	m.log.Info().Str("workspace_id", id).Str("branch", worktreeName).Msg("workspace created")
	return snapshot(info), nil
}

// Stop transitions a workspace to Stopped. Idempotent.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.workspaces[id]
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "workspace %q", id)
	}
	if info.State == StateStopped {
		return nil
	}
	info.State = StateStopping
	info.State = StateStopped
	return nil
}

// Remove tears down the worktree and erases the record. Refuses while
// Running.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	info, ok := m.workspaces[id]
	if !ok {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "workspace %q", id)
	}
	if info.State == StateRunning {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.RunningWorkspace, "workspace %q is running", id)
	}
	info.State = StateCleaning
	repoPath, worktreePath := info.RepoPath, info.WorktreePath
	m.mu.Unlock()

	if _, err := runGit(repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		m.log.Warn().Err(err).Str("workspace_id", id).Msg("worktree remove failed, falling back to rmdir")
		_ = os.RemoveAll(worktreePath)
	}

	m.mu.Lock()
	delete(m.workspaces, id)
	m.mu.Unlock()
	return nil
}

// List returns a snapshot of all workspaces, optionally filtered to one
// canonical repo path.
func (m *Manager) List(repoPath string) []*Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	var canonicalFilter string
	if repoPath != "" {
		if c, err := filepath.EvalSymlinks(repoPath); err == nil {
			canonicalFilter = c
		} else {
			canonicalFilter = repoPath
		}
	}

	out := make([]*Info, 0, len(m.workspaces))
	for _, info := range m.workspaces {
		if canonicalFilter != "" && info.RepoPath != canonicalFilter {
			continue
		}
		out = append(out, snapshot(info))
	}
	return out
}

// Get returns a snapshot of one workspace.
func (m *Manager) Get(id string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.workspaces[id]
	if !ok {
		return nil, kernelerr.New(kernelerr.NotFound, "workspace %q", id)
	}
	return snapshot(info), nil
}

func snapshot(info *Info) *Info {
	cp := *info
	return &cp
}

func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// runGit runs git in dir with retry-with-backoff on transient lock
// contention (index.lock held by a concurrent git process).
func runGit(dir string, args ...string) (string, error) {
	var out string
	operation := func() error {
		o, err := execGit(dir, args...)
		out = o
		if err != nil && isTransientGitError(err.Error()) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 3 * time.Second

	err := backoff.Retry(operation, b)
	return out, err
}

func isTransientGitError(msg string) bool {
	for _, marker := range []string{"index.lock", "unable to create", ".git/HEAD.lock"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// execGit is overridable in tests.
var execGit = func(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
