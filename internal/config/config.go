// Package config implements the two-tier configuration provider: a
// global config at ~/.loom/config.json and a per-repo config at
// <repo>/.loom/config.json, with repo-level agent overrides merged over
// global agent definitions. Grounded on original_source/config.rs.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/fileutil"
	"github.com/loomkit/loom/internal/kernelerr"
)

const configVersion = 1

const globalConfigFile = "config.json"

// configWatchDebounce coalesces the burst of Write/Create events an editor
// or `mv` can produce for a single logical save into one reload.
const configWatchDebounce = 150 * time.Millisecond

// AgentConfig is one agent's global definition.
type AgentConfig struct {
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Models       []string          `json:"models,omitempty"`
	DefaultModel string            `json:"default_model,omitempty"`
	ModelFlag    string            `json:"model_flag,omitempty"`
}

// AgentOverride is a repo-scoped partial override of an AgentConfig.
type AgentOverride struct {
	Args []string          `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`
}

// Defaults holds process-wide defaults.
type Defaults struct {
	Agent               string `json:"agent"`
	Theme               string `json:"theme"`
	MaxConcurrentAgents int    `json:"max_concurrent_agents"`
}

// RepoRef is a registered repository entry in the global config.
type RepoRef struct {
	Path  string `json:"path"`
	Alias string `json:"alias"`
}

// GlobalConfig is the full contents of ~/.loom/config.json.
type GlobalConfig struct {
	Version      int                    `json:"version"`
	Agents       map[string]AgentConfig `json:"agents"`
	Defaults     Defaults               `json:"defaults"`
	Repositories []RepoRef              `json:"repositories"`
}

// RepoConfig is the full contents of <repo>/.loom/config.json.
type RepoConfig struct {
	Version        int                      `json:"version"`
	SetupScript    string                   `json:"setup_script,omitempty"`
	DefaultAgent   string                   `json:"default_agent,omitempty"`
	DefaultBranch  string                   `json:"default_branch,omitempty"`
	WorktreeDir    string                   `json:"worktree_dir"`
	Snippets       map[string]string        `json:"snippets,omitempty"`
	AgentOverrides map[string]AgentOverride `json:"agent_overrides,omitempty"`
}

func defaultGlobal() GlobalConfig {
	return GlobalConfig{
		Version: configVersion,
		Agents: map[string]AgentConfig{
			"claude": {
				Command:      "claude",
				Models:       []string{"opus", "sonnet", "haiku"},
				DefaultModel: "sonnet",
				ModelFlag:    "--model",
			},
			"codex": {
				Command:      "codex",
				Models:       []string{"o3", "o4-mini", "gpt-4.1"},
				DefaultModel: "o4-mini",
				ModelFlag:    "--model",
			},
			"gemini": {
				Command:      "gemini",
				Models:       []string{"gemini-2.5-pro", "gemini-2.5-flash"},
				DefaultModel: "gemini-2.5-flash",
				ModelFlag:    "--model",
			},
		},
		Defaults: Defaults{
			Agent:               "claude",
			Theme:               "system",
			MaxConcurrentAgents: 8,
		},
		Repositories: []RepoRef{},
	}
}

func defaultRepoConfig() RepoConfig {
	return RepoConfig{
		Version:     configVersion,
		WorktreeDir: ".worktrees",
	}
}

// Store holds the resolved global config and every loaded repo config,
// hot-reloading the global file on external change.
type Store struct {
	mu          sync.RWMutex
	global      GlobalConfig
	repoConfigs map[string]RepoConfig
	globalPath  string
	log         zerolog.Logger
	watcher     *fsnotify.Watcher
}

// LoadOrDefault reads ~/.loom/config.json, creating it with defaults if
// absent, then loads every registered repo's local config.
func LoadOrDefault(log zerolog.Logger) (*Store, error) {
	path, err := fileutil.StatePath(globalConfigFile)
	if err != nil {
		return nil, err
	}

	s := &Store{
		repoConfigs: make(map[string]RepoConfig),
		globalPath:  path,
		log:         log.With().Str("subsystem", "config").Logger(),
	}

	global, err := readGlobalOrInit(path)
	if err != nil {
		return nil, err
	}
	s.global = global

	for _, repo := range s.global.Repositories {
		s.loadRepoConfigLocked(repo.Path)
	}
	return s, nil
}

func readGlobalOrInit(path string) (GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		g := defaultGlobal()
		if writeErr := writeGlobal(path, g); writeErr != nil {
			return GlobalConfig{}, writeErr
		}
		return g, nil
	}
	if err != nil {
		return GlobalConfig{}, kernelerr.Wrap(kernelerr.IoError, err, "reading global config")
	}
	var g GlobalConfig
	if err := json.Unmarshal(data, &g); err != nil {
		return defaultGlobal(), nil
	}
	return g, nil
}

func writeGlobal(path string, g GlobalConfig) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.SerializationErr, err, "marshaling global config")
	}
	lock := flock.New(path + ".lock")
	_ = lock.Lock()
	defer lock.Unlock()
	return os.WriteFile(path, data, 0644)
}

func (s *Store) loadRepoConfigLocked(repoPath string) {
	path := fileutil.RepoStatePath(repoPath, globalConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		s.repoConfigs[repoPath] = defaultRepoConfig()
		return
	}
	var rc RepoConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		s.repoConfigs[repoPath] = defaultRepoConfig()
		return
	}
	if rc.WorktreeDir == "" {
		rc.WorktreeDir = ".worktrees"
	}
	if rc.Version == 0 {
		rc.Version = configVersion
	}
	s.repoConfigs[repoPath] = rc
}

// ReloadRepoConfig re-reads a single repo's local config file from disk.
func (s *Store) ReloadRepoConfig(repoPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadRepoConfigLocked(repoPath)
}

// ResolveAgent merges a repo's agent override (if any) over the global
// agent definition. Command, models, default model, and model flag are
// never overridden; args are replaced wholesale only when the override
// supplies a non-empty list; env is merged with the override winning.
func (s *Store) ResolveAgent(repoPath, agentName string) (AgentConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base, ok := s.global.Agents[agentName]
	if !ok {
		return AgentConfig{}, false
	}

	repoCfg, ok := s.repoConfigs[repoPath]
	if !ok {
		return base, true
	}
	override, ok := repoCfg.AgentOverrides[agentName]
	if !ok {
		return base, true
	}

	resolved := base
	if len(override.Args) > 0 {
		resolved.Args = override.Args
	}
	if len(override.Env) > 0 {
		merged := make(map[string]string, len(base.Env)+len(override.Env))
		for k, v := range base.Env {
			merged[k] = v
		}
		for k, v := range override.Env {
			merged[k] = v
		}
		resolved.Env = merged
	}
	return resolved, true
}

// Global returns a copy of the current global config.
func (s *Store) Global() GlobalConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// RepoConfig returns the loaded config for repoPath, or the default if
// none has been loaded.
func (s *Store) RepoConfig(repoPath string) RepoConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rc, ok := s.repoConfigs[repoPath]; ok {
		return rc
	}
	return defaultRepoConfig()
}

// SaveGlobal persists the current global config to disk.
func (s *Store) SaveGlobal() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return writeGlobal(s.globalPath, s.global)
}

// AddRepository registers path/alias in the global config (a no-op if
// path is already registered) and loads its local config.
func (s *Store) AddRepository(path, alias string) error {
	s.mu.Lock()
	for _, r := range s.global.Repositories {
		if r.Path == path {
			s.mu.Unlock()
			return nil
		}
	}
	s.global.Repositories = append(s.global.Repositories, RepoRef{Path: path, Alias: alias})
	s.loadRepoConfigLocked(path)
	s.mu.Unlock()
	return s.SaveGlobal()
}

// RemoveRepository unregisters path from the global config.
func (s *Store) RemoveRepository(path string) error {
	s.mu.Lock()
	out := s.global.Repositories[:0]
	for _, r := range s.global.Repositories {
		if r.Path != path {
			out = append(out, r)
		}
	}
	s.global.Repositories = out
	delete(s.repoConfigs, path)
	s.mu.Unlock()
	return s.SaveGlobal()
}

// ListRepositories returns the registered repositories.
func (s *Store) ListRepositories() []RepoRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RepoRef, len(s.global.Repositories))
	copy(out, s.global.Repositories)
	return out
}

// WatchGlobal starts an fsnotify watch on the global config file's
// directory, reloading s.global whenever the file is written. Call
// Close to stop watching.
func (s *Store) WatchGlobal() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return kernelerr.Wrap(kernelerr.IoError, err, "creating config watcher")
	}
	if err := w.Add(filepath.Dir(s.globalPath)); err != nil {
		w.Close()
		return kernelerr.Wrap(kernelerr.IoError, err, "watching config directory")
	}
	s.watcher = w

	go func() {
		timer := time.NewTimer(configWatchDebounce)
		if !timer.Stop() {
			<-timer.C
		}
		pending := false
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.globalPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if pending && !timer.Stop() {
					<-timer.C
				}
				pending = true
				timer.Reset(configWatchDebounce)
			case <-timer.C:
				pending = false
				g, err := readGlobalOrInit(s.globalPath)
				if err != nil {
					s.log.Warn().Err(err).Msg("config reload failed")
					continue
				}
				s.mu.Lock()
				s.global = g
				s.mu.Unlock()
				s.log.Info().Msg("global config reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}

// Close stops the config watcher, if running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
