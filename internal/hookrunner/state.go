package hookrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/loomkit/loom/internal/fileutil"
)

// Hook lifecycle states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

// HookStatus is the last known outcome of one hook run.
type HookStatus struct {
	State       string `json:"state"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
	PID         int    `json:"pid"`
}

func statusDir(worktreeDir string) string {
	return fileutil.RepoStatePath(worktreeDir, "hook-status")
}

func statusFilePath(worktreeDir, hookName string) string {
	return filepath.Join(statusDir(worktreeDir), hookName+".json")
}

// WriteStatus persists a hook's status to its JSON status file.
func WriteStatus(worktreeDir, hookName string, status *HookStatus) error {
	dir := statusDir(worktreeDir)
	if err := fileutil.EnsureDir(dir); err != nil {
		return err
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return os.WriteFile(statusFilePath(worktreeDir, hookName), data, 0644)
}

// ReadStatus reads a hook's last known status, returning nil if none
// has ever been recorded.
func ReadStatus(worktreeDir, hookName string) (*HookStatus, error) {
	path := statusFilePath(worktreeDir, hookName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status for %s: %w", hookName, err)
	}
	var status HookStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parsing status for %s: %w", hookName, err)
	}
	return &status, nil
}

// IsProcessAlive reports whether pid still refers to a live process.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ResetStaleStatuses rewrites any hook left in StateRunning whose PID is
// no longer alive to StateFailed, clearing stuck state left behind by a
// process that was killed mid-hook.
func ResetStaleStatuses(worktreeDir string, hookNames []string) {
	for _, name := range hookNames {
		status, err := ReadStatus(worktreeDir, name)
		if err != nil || status == nil || status.State != StateRunning {
			continue
		}
		if IsProcessAlive(status.PID) {
			continue
		}
		_ = WriteStatus(worktreeDir, name, &HookStatus{
			State: StateFailed,
			Error: "stale running state cleared on startup (previous process interrupted)",
			PID:   status.PID,
		})
	}
}
