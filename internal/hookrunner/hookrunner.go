// Package hookrunner executes an internal/hooks.Config pipeline against a
// single workspace worktree: hooks run in dependency order (Settings.After
// chains), independent hooks at the same level run in parallel, and a
// failed hook skips everything downstream of it. Adapted from the
// teacher's internal/engine/engine.go concern-pipeline runner, narrowed
// from "watch a branch, spawn an agent, commit the result" to "run a
// named shell command in a worktree and record its outcome" — the
// git-branch/worktree/rebase/commit machinery that package built around
// CI-style concern branches does not apply to session lifecycle hooks,
// which run inside a workspace worktree the workspace manager already
// owns.
package hookrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/hooks"
)

// LogManager owns one append-only log file per hook name.
type LogManager struct {
	mu    sync.Mutex
	files map[string]*os.File
}

// NewLogManager returns an empty LogManager.
func NewLogManager() *LogManager {
	return &LogManager{files: make(map[string]*os.File)}
}

func (lm *LogManager) getLogFile(hookName string) (*os.File, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if f, ok := lm.files[hookName]; ok {
		return f, nil
	}
	path := LogPathFor(hookName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	lm.files[hookName] = f
	return f, nil
}

// LogPathFor returns the log file path for a specific hook.
func LogPathFor(hookName string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("loom-hook-%s.log", hookName))
}

// Close closes every open log file.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	var firstErr error
	for name, f := range lm.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file for %s: %w", name, err)
		}
	}
	lm.files = make(map[string]*os.File)
	return firstErr
}

// Runner executes a hooks.Config against one worktree.
type Runner struct {
	log zerolog.Logger
}

// New returns a hook pipeline runner.
func New(log zerolog.Logger) *Runner {
	return &Runner{log: log.With().Str("subsystem", "hookrunner").Logger()}
}

type failedSet struct {
	mu sync.Mutex
	m  map[string]bool
}

func (f *failedSet) set(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = true
}

func (f *failedSet) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[name]
}

// RunOnce runs every hook in cfg once against worktreeDir, in dependency
// order, writing a HookStatus per hook. A temporary LogManager is created
// and closed before returning.
func (r *Runner) RunOnce(cfg *hooks.Config, worktreeDir string) error {
	logMgr := NewLogManager()
	defer logMgr.Close()
	return r.RunOnceWithLogs(cfg, worktreeDir, logMgr)
}

// RunOnceWithLogs runs every hook in cfg using a caller-owned LogManager.
func (r *Runner) RunOnceWithLogs(cfg *hooks.Config, worktreeDir string, logMgr *LogManager) error {
	levels := topologicalLevels(cfg.Hooks)
	failed := &failedSet{m: make(map[string]bool)}

	for _, level := range levels {
		if len(level) == 1 {
			h := level[0]
			if failed.has(h.After) {
				r.skip(worktreeDir, h)
				failed.set(h.Name)
				continue
			}
			if err := r.processHook(cfg, worktreeDir, h, logMgr); err != nil {
				r.log.Warn().Err(err).Str("hook", h.Name).Msg("hook failed")
				failed.set(h.Name)
			}
			continue
		}

		var wg sync.WaitGroup
		for _, h := range level {
			if failed.has(h.After) {
				r.skip(worktreeDir, h)
				failed.set(h.Name)
				continue
			}
			wg.Add(1)
			go func(h hooks.Hook) {
				defer wg.Done()
				if err := r.processHook(cfg, worktreeDir, h, logMgr); err != nil {
					r.log.Warn().Err(err).Str("hook", h.Name).Msg("hook failed")
					failed.set(h.Name)
				}
			}(h)
		}
		wg.Wait()
	}
	return nil
}

func (r *Runner) skip(worktreeDir string, h hooks.Hook) {
	r.log.Info().Str("hook", h.Name).Msg("skipping hook: upstream hook failed")
	_ = WriteStatus(worktreeDir, h.Name, &HookStatus{State: StateSkipped, Error: "upstream hook failed", PID: os.Getpid()})
}

func (r *Runner) processHook(cfg *hooks.Config, worktreeDir string, h hooks.Hook, logMgr *LogManager) error {
	pid := os.Getpid()
	startedAt := nowRFC3339()
	_ = WriteStatus(worktreeDir, h.Name, &HookStatus{State: StateRunning, StartedAt: startedAt, PID: pid})

	logFile, err := logMgr.getLogFile(h.Name)
	if err != nil {
		return r.failed(worktreeDir, h.Name, startedAt, pid, err)
	}
	header := fmt.Sprintf("--- Running %s at %s ---\n", h.Name, startedAt)
	if _, err := logFile.WriteString(header); err != nil {
		return r.failed(worktreeDir, h.Name, startedAt, pid, err)
	}

	if cfg.Permissions != nil {
		if err := writePermissions(worktreeDir, cfg.Permissions); err != nil {
			return r.failed(worktreeDir, h.Name, startedAt, pid, fmt.Errorf("writing permissions: %w", err))
		}
	}

	timeout := cfg.Settings.Timeout.Duration()
	if err := runHook(h, worktreeDir, logFile, timeout); err != nil {
		return r.failed(worktreeDir, h.Name, startedAt, pid, err)
	}

	_ = WriteStatus(worktreeDir, h.Name, &HookStatus{
		State: StateIdle, StartedAt: startedAt, CompletedAt: nowRFC3339(), PID: pid,
	})
	return nil
}

func (r *Runner) failed(worktreeDir, name, startedAt string, pid int, origErr error) error {
	_ = WriteStatus(worktreeDir, name, &HookStatus{
		State: StateFailed, StartedAt: startedAt, CompletedAt: nowRFC3339(), Error: origErr.Error(), PID: pid,
	})
	return origErr
}

func runHook(h hooks.Hook, worktreeDir string, output *os.File, timeout time.Duration) error {
	cmd := exec.Command(h.Command, h.Args...)
	cmd.Dir = worktreeDir
	cmd.Stdout = output
	cmd.Stderr = output

	if timeout <= 0 {
		return cmd.Run()
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("hook %q timed out after %s", h.Name, timeout)
	}
}

// writePermissions writes a .claude/settings.json file in the worktree
// with the configured allow/deny lists, so Claude Code sessions started
// against this worktree inherit pre-approved tool permissions.
func writePermissions(worktreeDir string, perms *hooks.Permissions) error {
	claudeDir := filepath.Join(worktreeDir, ".claude")
	if err := os.MkdirAll(claudeDir, 0755); err != nil {
		return err
	}
	settings := map[string]any{"permissions": perms}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(claudeDir, "settings.json"), append(data, '\n'), 0644)
}

// topologicalLevels groups hooks into levels for parallel execution.
// Level 0 = roots (After names nothing in this pipeline), level 1 =
// depends only on level 0, etc.
func topologicalLevels(hookList []hooks.Hook) [][]hooks.Hook {
	nameSet := make(map[string]bool, len(hookList))
	byName := make(map[string]hooks.Hook, len(hookList))
	for _, h := range hookList {
		nameSet[h.Name] = true
		byName[h.Name] = h
	}

	levels := make(map[string]int)
	var computeLevel func(name string) int
	computeLevel = func(name string) int {
		if l, ok := levels[name]; ok {
			return l
		}
		h := byName[name]
		if !nameSet[h.After] {
			levels[name] = 0
			return 0
		}
		l := computeLevel(h.After) + 1
		levels[name] = l
		return l
	}

	maxLevel := 0
	for _, h := range hookList {
		if l := computeLevel(h.Name); l > maxLevel {
			maxLevel = l
		}
	}

	result := make([][]hooks.Hook, maxLevel+1)
	for _, h := range hookList {
		l := levels[h.Name]
		result[l] = append(result[l], h)
	}
	return result
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
