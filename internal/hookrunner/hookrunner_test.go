package hookrunner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/hooks"
)

func newRunner() *Runner {
	return New(zerolog.Nop())
}

func touchHook(name, after, markerPath string) hooks.Hook {
	return hooks.Hook{
		Name:    name,
		After:   after,
		Command: "sh",
		Args:    []string{"-c", "printf " + name + " >> " + markerPath},
	}
}

func TestRunOnceRunsHooksInDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "order.txt")

	cfg := &hooks.Config{
		Hooks: []hooks.Hook{
			touchHook("second", "first", marker),
			touchHook("first", "", marker),
		},
	}
	if err := newRunner().RunOnce(cfg, dir); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "firstsecond" {
		t.Fatalf("marker = %q, want first then second", data)
	}

	first, err := ReadStatus(dir, "first")
	if err != nil || first == nil || first.State != StateIdle {
		t.Fatalf("first status = %+v, err %v", first, err)
	}
	second, err := ReadStatus(dir, "second")
	if err != nil || second == nil || second.State != StateIdle {
		t.Fatalf("second status = %+v, err %v", second, err)
	}
}

func TestFailedHookSkipsDownstream(t *testing.T) {
	dir := t.TempDir()
	cfg := &hooks.Config{
		Hooks: []hooks.Hook{
			{Name: "broken", Command: "sh", Args: []string{"-c", "exit 1"}},
			{Name: "downstream", After: "broken", Command: "sh", Args: []string{"-c", "exit 0"}},
		},
	}
	if err := newRunner().RunOnce(cfg, dir); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	broken, err := ReadStatus(dir, "broken")
	if err != nil || broken == nil || broken.State != StateFailed {
		t.Fatalf("broken status = %+v, err %v", broken, err)
	}
	downstream, err := ReadStatus(dir, "downstream")
	if err != nil || downstream == nil || downstream.State != StateSkipped {
		t.Fatalf("downstream status = %+v, err %v", downstream, err)
	}
}

func TestHookTimeoutFailsTheHook(t *testing.T) {
	dir := t.TempDir()
	cfg := &hooks.Config{
		Settings: hooks.Settings{Timeout: hooks.Duration(50 * time.Millisecond)},
		Hooks: []hooks.Hook{
			{Name: "slow", Command: "sh", Args: []string{"-c", "sleep 5"}},
		},
	}
	if err := newRunner().RunOnce(cfg, dir); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	status, err := ReadStatus(dir, "slow")
	if err != nil || status == nil || status.State != StateFailed {
		t.Fatalf("status = %+v, err %v", status, err)
	}
}

func TestWritePermissionsWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := &hooks.Config{
		Permissions: &hooks.Permissions{Allow: []string{"Bash(git *)"}, Deny: []string{"Bash(rm -rf *)"}},
		Hooks: []hooks.Hook{
			{Name: "noop", Command: "sh", Args: []string{"-c", "exit 0"}},
		},
	}
	if err := newRunner().RunOnce(cfg, dir); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".claude", "settings.json")); err != nil {
		t.Fatalf("expected .claude/settings.json to be written: %v", err)
	}
}

func TestResetStaleStatusesClearsDeadProcessRunningState(t *testing.T) {
	dir := t.TempDir()
	if err := WriteStatus(dir, "stuck", &HookStatus{State: StateRunning, PID: 999999999}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	ResetStaleStatuses(dir, []string{"stuck"})

	status, err := ReadStatus(dir, "stuck")
	if err != nil || status == nil || status.State != StateFailed {
		t.Fatalf("status = %+v, err %v", status, err)
	}
}

func TestResetStaleStatusesLeavesLiveProcessAlone(t *testing.T) {
	dir := t.TempDir()
	if err := WriteStatus(dir, "alive", &HookStatus{State: StateRunning, PID: os.Getpid()}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	ResetStaleStatuses(dir, []string{"alive"})

	status, err := ReadStatus(dir, "alive")
	if err != nil || status == nil || status.State != StateRunning {
		t.Fatalf("status = %+v, err %v", status, err)
	}
}
