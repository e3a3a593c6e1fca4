// Package kernel assembles every component package into the one
// orchestration surface the CLI (and, eventually, any other front end)
// drives: workspace lifecycle, PTY sessions, trust, git review, secrets,
// configuration, and snippets: one struct every front end calls through,
// with a small set of shared helpers rather than each command
// reimplementing path resolution and trust checks.
package kernel

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/agent"
	"github.com/loomkit/loom/internal/config"
	"github.com/loomkit/loom/internal/eventbus"
	"github.com/loomkit/loom/internal/fileutil"
	"github.com/loomkit/loom/internal/gitreview"
	"github.com/loomkit/loom/internal/kernelerr"
	"github.com/loomkit/loom/internal/ptysession"
	"github.com/loomkit/loom/internal/secret"
	"github.com/loomkit/loom/internal/shortcuts"
	"github.com/loomkit/loom/internal/snippet"
	"github.com/loomkit/loom/internal/trust"
	"github.com/loomkit/loom/internal/workspace"
)

// TrustRequiredPayload is emitted on the "trust-required" topic when
// CreateWorkspace finds an untrusted or changed repo with a setup script.
type TrustRequiredPayload struct {
	WorkspaceID   string
	RepoPath      string
	ScriptContent string
	ChangedFiles  []string
}

// Kernel wires every component together behind one facade.
type Kernel struct {
	Config    *config.Store
	Workspace *workspace.Manager
	PTY       *ptysession.Manager
	Trust     *trust.Engine
	Secret    *secret.Store
	Bus       *eventbus.Bus
	Snippets  *snippet.Runner
	log       zerolog.Logger
}

// New assembles a Kernel from its component stores. The trust store is
// read from trust.json under the global state directory.
func New(log zerolog.Logger) (*Kernel, error) {
	cfgStore, err := config.LoadOrDefault(log)
	if err != nil {
		return nil, err
	}
	secretStore, err := secret.Load(log)
	if err != nil {
		return nil, err
	}
	trustPath, err := fileutil.StatePath("trust.json")
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()
	trustEngine := trust.New(trustPath, log)

	return &Kernel{
		Config:    cfgStore,
		Workspace: workspace.New(log),
		PTY:       ptysession.New(cfgStore.Global().Defaults.MaxConcurrentAgents, bus, log),
		Trust:     trustEngine,
		Secret:    secretStore,
		Bus:       bus,
		Snippets:  snippet.NewRunner(trustEngine, bus, log),
		log:       log.With().Str("subsystem", "kernel").Logger(),
	}, nil
}

func (k *Kernel) trustFiles(repoPath string) (configPath, snippetsPath string) {
	return fileutil.RepoStatePath(repoPath, "config.json"), fileutil.RepoStatePath(repoPath, "snippets.json")
}

// CreateWorkspace resolves the agent, creates the worktree, and either
// starts the agent immediately (no setup script, or an already-trusted,
// unchanged repo) or returns the workspace without spawning, having
// emitted "trust-required" for the caller to act on.
func (k *Kernel) CreateWorkspace(repoPath, alias, agentName, model string) (*workspace.Info, error) {
	repoCfg := k.Config.RepoConfig(repoPath)
	if agentName == "" {
		agentName = repoCfg.DefaultAgent
	}
	if agentName == "" {
		agentName = k.Config.Global().Defaults.Agent
	}

	worktreeDir := repoCfg.WorktreeDir
	if !filepath.IsAbs(worktreeDir) {
		worktreeDir = filepath.Join(repoPath, worktreeDir)
	}

	branchPrefix := repoCfg.DefaultBranch
	if branchPrefix == "" {
		branchPrefix = agentName
	}

	info, err := k.Workspace.Create(repoPath, alias, branchPrefix, agentName, worktreeDir, "")
	if err != nil {
		return nil, err
	}

	if repoCfg.SetupScript == "" {
		if err := k.StartAgentNoSetup(info.ID, model); err != nil {
			return info, err
		}
		return info, nil
	}

	configPath, snippetsPath := k.trustFiles(repoPath)
	status, err := k.Trust.CheckTrust(repoPath, configPath, snippetsPath)
	if err != nil {
		return info, err
	}
	if status.IsTrusted() {
		if err := k.RunSetupAndStartAgent(info.ID, model); err != nil {
			return info, err
		}
		return info, nil
	}

	k.Bus.Emit("trust-required", TrustRequiredPayload{
		WorkspaceID:   info.ID,
		RepoPath:      repoPath,
		ScriptContent: repoCfg.SetupScript,
		ChangedFiles:  status.ChangedFiles,
	})
	return info, nil
}

// RunSetupAndStartAgent runs the repo's setup script in the worktree,
// then spawns the agent. Intended to be called after a caller resolves
// a trust-required prompt.
func (k *Kernel) RunSetupAndStartAgent(workspaceID, model string) error {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return err
	}
	repoCfg := k.Config.RepoConfig(info.RepoPath)
	if repoCfg.SetupScript != "" {
		cmd := exec.Command("sh", "-c", repoCfg.SetupScript)
		cmd.Dir = info.WorktreePath
		if out, err := cmd.CombinedOutput(); err != nil {
			return kernelerr.Wrap(kernelerr.GitFailure, err, "setup script failed: %s", string(out))
		}
	}
	return k.StartAgentNoSetup(workspaceID, model)
}

// StartAgentNoSetup spawns the agent in an already-created workspace
// without running any setup script.
func (k *Kernel) StartAgentNoSetup(workspaceID, model string) error {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return err
	}
	agentCfg, ok := k.Config.ResolveAgent(info.RepoPath, info.Agent)
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "unknown agent: %s", info.Agent)
	}
	if model == "" {
		model = agentCfg.DefaultModel
	}
	ad := agent.New(info.Agent, agent.Definition{
		Command:   agentCfg.Command,
		Args:      agentCfg.Args,
		Env:       agentCfg.Env,
		ModelFlag: agentCfg.ModelFlag,
	})
	return k.PTY.Spawn(workspaceID, ad, info.WorktreePath, model, k.Secret.EnvVars())
}

// SwitchAgentModel kills and respawns the workspace's PTY session with a
// new model.
func (k *Kernel) SwitchAgentModel(workspaceID, model string) error {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return err
	}
	agentCfg, ok := k.Config.ResolveAgent(info.RepoPath, info.Agent)
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "unknown agent: %s", info.Agent)
	}
	ad := agent.New(info.Agent, agent.Definition{
		Command:   agentCfg.Command,
		Args:      agentCfg.Args,
		Env:       agentCfg.Env,
		ModelFlag: agentCfg.ModelFlag,
	})
	return k.PTY.SwitchAgentModel(workspaceID, ad, info.WorktreePath, model, k.Secret.EnvVars())
}

// StopWorkspace kills the PTY session (if any) and marks the workspace stopped.
func (k *Kernel) StopWorkspace(workspaceID string) error {
	_ = k.PTY.Kill(workspaceID)
	return k.Workspace.Stop(workspaceID)
}

// RemoveWorkspace removes the worktree and registry entry. Refuses while running.
func (k *Kernel) RemoveWorkspace(workspaceID string) error {
	return k.Workspace.Remove(workspaceID)
}

// DiscardWorkspace force-discards a worktree's uncommitted changes and
// removes it, regardless of git's own safety checks.
func (k *Kernel) DiscardWorkspace(workspaceID string) error {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return err
	}
	if err := gitreview.DiscardWorktree(info.RepoPath, info.WorktreePath, info.Branch); err != nil {
		return err
	}
	_ = k.PTY.Kill(workspaceID)
	_ = k.Workspace.Stop(workspaceID)
	return k.Workspace.Remove(workspaceID)
}

// ListWorkspaces lists every workspace registered for repoPath ("" = all).
func (k *Kernel) ListWorkspaces(repoPath string) []*workspace.Info {
	return k.Workspace.List(repoPath)
}

// SendToAgent writes data, plus a trailing newline, to a workspace's PTY.
func (k *Kernel) SendToAgent(workspaceID, data string) error {
	return k.PTY.Write(workspaceID, data)
}

// GetWorktreeStatus computes the review summary for a workspace.
func (k *Kernel) GetWorktreeStatus(workspaceID string) (*gitreview.WorktreeStatus, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	return gitreview.ComputeStatus(info.WorktreePath, workspaceID, info.BaseBranch)
}

// GetDiff computes a parsed diff for the given paths (or all changed paths if empty).
func (k *Kernel) GetDiff(workspaceID string, paths []string) ([]gitreview.FileDiff, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	return gitreview.ComputeDiff(info.WorktreePath, info.BaseBranch, paths)
}

// GetFileContent reads path at the given version (base or working).
func (k *Kernel) GetFileContent(workspaceID, path string, version gitreview.FileVersion) (string, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return "", err
	}
	return gitreview.ReadFileAtVersion(info.WorktreePath, path, version, info.BaseBranch)
}

// MergeWorkspace merges a workspace's branch back onto its base. Refuses
// while the workspace is running.
func (k *Kernel) MergeWorkspace(workspaceID string, strategy gitreview.MergeStrategy, commitMessage string) (*gitreview.MergeResult, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	if info.State == workspace.StateRunning {
		return nil, kernelerr.New(kernelerr.RunningWorkspace, "workspace %s is still running", workspaceID)
	}
	return gitreview.MergeBranch(info.RepoPath, info.Branch, info.BaseBranch, strategy, commitMessage)
}

// ListSnippets merges global and repo-level snippets for repoPath.
func (k *Kernel) ListSnippets(repoPath string) ([]snippet.Snippet, error) {
	return snippet.ListMerged(repoPath)
}

// SaveSnippet upserts a snippet at repo scope (repoPath != "") or global scope.
func (k *Kernel) SaveSnippet(repoPath string, s snippet.Snippet) error {
	return snippet.Save(repoPath, s)
}

// DeleteSnippet removes a snippet at repo or global scope.
func (k *Kernel) DeleteSnippet(repoPath, name string) error {
	return snippet.Delete(repoPath, name)
}

// RunSnippet executes name in the workspace's worktree, trust-gated
// (global-only snippets bypass the gate).
func (k *Kernel) RunSnippet(workspaceID, name string) (*snippet.RunResult, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	configPath, snippetsPath := k.trustFiles(info.RepoPath)
	return k.Snippets.Run(info.RepoPath, info.WorktreePath, configPath, snippetsPath, name)
}

// RunSnippetV2 is RunSnippet plus a TOCTOU guard that re-verifies the
// snippet's command body immediately before spawning, aborting (with a
// -1-exit-code completion event) if it changed since the initial resolve.
func (k *Kernel) RunSnippetV2(workspaceID, name string) (*snippet.RunResult, error) {
	info, err := k.Workspace.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	configPath, snippetsPath := k.trustFiles(info.RepoPath)
	return k.Snippets.RunV2(info.RepoPath, info.WorktreePath, configPath, snippetsPath, name)
}

// CheckTrust reports whether repoPath is currently trusted.
func (k *Kernel) CheckTrust(repoPath string) (trust.Status, error) {
	configPath, snippetsPath := k.trustFiles(repoPath)
	return k.Trust.CheckTrust(repoPath, configPath, snippetsPath)
}

// GrantTrust marks repoPath trusted at its current config/snippets hashes.
func (k *Kernel) GrantTrust(repoPath string) error {
	configPath, snippetsPath := k.trustFiles(repoPath)
	return k.Trust.GrantTrust(repoPath, configPath, snippetsPath)
}

// RevokeTrust marks repoPath untrusted.
func (k *Kernel) RevokeTrust(repoPath string) error {
	return k.Trust.RevokeTrust(repoPath)
}

// GetSecret/SetSecret/DeleteSecret/ListSecretKeys expose the OS-keychain cache.
func (k *Kernel) GetSecret(key string) (string, bool) { return k.Secret.Get(key) }
func (k *Kernel) SetSecret(key, value string) error   { return k.Secret.Set(key, value) }
func (k *Kernel) DeleteSecret(key string) error       { return k.Secret.Delete(key) }
func (k *Kernel) ListSecretKeys() ([]string, error)   { return k.Secret.ListKeys() }

// AddRepository/RemoveRepository/ListRepositories/GetConfig/SaveConfig
// proxy the configuration provider's repository registry and global config.
func (k *Kernel) AddRepository(path, alias string) error {
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		canonical = path
	}
	if _, err := os.Stat(filepath.Join(canonical, ".git")); err != nil {
		return kernelerr.New(kernelerr.NotAGitRepo, "%q has no .git", canonical)
	}
	return k.Config.AddRepository(canonical, alias)
}

func (k *Kernel) RemoveRepository(path string) error  { return k.Config.RemoveRepository(path) }
func (k *Kernel) ListRepositories() []config.RepoRef  { return k.Config.ListRepositories() }
func (k *Kernel) GetConfig() config.GlobalConfig      { return k.Config.Global() }
func (k *Kernel) SaveConfig() error                   { return k.Config.SaveGlobal() }

// ListShortcuts returns the persisted keyboard-shortcut map.
func (k *Kernel) ListShortcuts() (shortcuts.Map, error) {
	return shortcuts.Load()
}

// SaveShortcuts overwrites the shortcut map and emits "shortcuts-updated".
func (k *Kernel) SaveShortcuts(m shortcuts.Map) error {
	if err := shortcuts.Save(m); err != nil {
		return err
	}
	k.Bus.Emit("shortcuts-updated", m)
	return nil
}

// Close releases file watchers and any other held resources.
func (k *Kernel) Close() error {
	return k.Config.Close()
}
