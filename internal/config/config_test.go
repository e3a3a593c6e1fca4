package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	s, err := LoadOrDefault(zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	return s
}

func TestDefaultGlobalHasThreeAgents(t *testing.T) {
	s := newStore(t)
	g := s.Global()
	if len(g.Agents) != 3 {
		t.Fatalf("len(agents) = %d, want 3", len(g.Agents))
	}
	for _, name := range []string{"claude", "codex", "gemini"} {
		if _, ok := g.Agents[name]; !ok {
			t.Fatalf("missing default agent %q", name)
		}
	}
}

func TestDefaultGlobalDefaults(t *testing.T) {
	s := newStore(t)
	g := s.Global()
	if g.Defaults.Agent != "claude" || g.Defaults.Theme != "system" || g.Defaults.MaxConcurrentAgents != 8 {
		t.Fatalf("defaults = %+v, want claude/system/8", g.Defaults)
	}
}

func TestLoadOrDefaultPersistsDefaultsToDisk(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if _, err := LoadOrDefault(zerolog.Nop()); err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	path := filepath.Join(home, ".loom", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config.json to be written: %v", err)
	}
}

func TestResolveAgentNoOverride(t *testing.T) {
	s := newStore(t)
	agent, ok := s.ResolveAgent("/some/repo", "claude")
	if !ok {
		t.Fatalf("expected claude to resolve")
	}
	if agent.Command != "claude" || len(agent.Args) != 0 {
		t.Fatalf("agent = %+v", agent)
	}
}

func TestResolveAgentUnknownReturnsFalse(t *testing.T) {
	s := newStore(t)
	if _, ok := s.ResolveAgent("/some/repo", "nonexistent"); ok {
		t.Fatalf("expected ok=false for unknown agent")
	}
}

func TestResolveAgentOverrideArgsAndEnv(t *testing.T) {
	s := newStore(t)
	repoDir := t.TempDir()
	s.repoConfigs[repoDir] = RepoConfig{
		WorktreeDir: ".worktrees",
		AgentOverrides: map[string]AgentOverride{
			"claude": {
				Args: []string{"--custom-flag"},
				Env:  map[string]string{"MY_VAR": "my_value"},
			},
		},
	}
	agent, ok := s.ResolveAgent(repoDir, "claude")
	if !ok {
		t.Fatalf("expected claude to resolve")
	}
	if len(agent.Args) != 1 || agent.Args[0] != "--custom-flag" {
		t.Fatalf("args = %v, want [--custom-flag]", agent.Args)
	}
	if agent.Env["MY_VAR"] != "my_value" {
		t.Fatalf("env = %v", agent.Env)
	}
}

func TestResolveAgentEmptyOverrideArgsFallsBackToBase(t *testing.T) {
	s := newStore(t)
	repoDir := t.TempDir()
	s.mu.Lock()
	base := s.global.Agents["claude"]
	base.Args = []string{"--base-flag"}
	s.global.Agents["claude"] = base
	s.repoConfigs[repoDir] = RepoConfig{
		AgentOverrides: map[string]AgentOverride{
			"claude": {Args: nil, Env: map[string]string{"X": "Y"}},
		},
	}
	s.mu.Unlock()

	agent, ok := s.ResolveAgent(repoDir, "claude")
	if !ok {
		t.Fatalf("expected claude to resolve")
	}
	if len(agent.Args) != 1 || agent.Args[0] != "--base-flag" {
		t.Fatalf("args = %v, want [--base-flag] (fallback to base)", agent.Args)
	}
}

func TestAddRepositoryIsIdempotent(t *testing.T) {
	s := newStore(t)
	repoDir := t.TempDir()
	if err := s.AddRepository(repoDir, "alias-one"); err != nil {
		t.Fatalf("AddRepository: %v", err)
	}
	if err := s.AddRepository(repoDir, "alias-two"); err != nil {
		t.Fatalf("AddRepository: %v", err)
	}
	repos := s.ListRepositories()
	if len(repos) != 1 {
		t.Fatalf("len(repos) = %d, want 1", len(repos))
	}
	if repos[0].Alias != "alias-one" {
		t.Fatalf("alias = %q, want original alias-one preserved", repos[0].Alias)
	}
}

func TestRemoveRepository(t *testing.T) {
	s := newStore(t)
	repoA := t.TempDir()
	repoB := t.TempDir()
	_ = s.AddRepository(repoA, "a")
	_ = s.AddRepository(repoB, "b")

	if err := s.RemoveRepository(repoA); err != nil {
		t.Fatalf("RemoveRepository: %v", err)
	}
	repos := s.ListRepositories()
	if len(repos) != 1 || repos[0].Path != repoB {
		t.Fatalf("repos = %v, want only repoB", repos)
	}
}

func TestRemoveNonexistentRepositoryIsNoop(t *testing.T) {
	s := newStore(t)
	repoDir := t.TempDir()
	_ = s.AddRepository(repoDir, "a")
	if err := s.RemoveRepository("/nonexistent"); err != nil {
		t.Fatalf("RemoveRepository: %v", err)
	}
	if len(s.ListRepositories()) != 1 {
		t.Fatalf("expected repository list unchanged")
	}
}

func TestRepoConfigDefaultsWhenUnloaded(t *testing.T) {
	s := newStore(t)
	rc := s.RepoConfig("/never/loaded")
	if rc.WorktreeDir != ".worktrees" {
		t.Fatalf("worktree dir = %q, want .worktrees", rc.WorktreeDir)
	}
}
