// Package ptysession manages one PTY-backed agent process per
// workspace: spawn, write, resize, kill, and hot model switching.
// Grounded on original_source/pty_manager.rs, with the bidirectional
// creack/pty wiring adapted from johnfelixespinosa-agent-tui/pty.go.
package ptysession

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/agent"
	"github.com/loomkit/loom/internal/eventbus"
	"github.com/loomkit/loom/internal/kernelerr"
)

const (
	batchInterval = 16 * time.Millisecond
	batchMaxBytes = 4096
	defaultRows   = 40
	defaultCols   = 120
)

// session holds the live state of one spawned agent PTY.
type session struct {
	mu    sync.Mutex
	ptmx  *os.File
	proc  *os.Process
	alive bool
	epoch int
}

func (s *session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *session) markDead() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
}

// Manager owns every live PTY session, keyed by workspace/session ID.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxSessions int
	bus         *eventbus.Bus
	log         zerolog.Logger
}

// New returns an empty manager capped at maxSessions concurrent agents.
func New(maxSessions int, bus *eventbus.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*session),
		maxSessions: maxSessions,
		bus:         bus,
		log:         log.With().Str("subsystem", "ptysession").Logger(),
	}
}

// Spawn starts an agent process in a pseudo-terminal for id. Fails if
// the session limit is reached or id is already in use. Output is
// streamed to the "pty-output-<id>" topic in batches: after each read the
// pending batch is flushed once batchInterval has passed since the last
// flush or once it holds more than batchMaxBytes; a "pty-exit-<id>" event
// fires once the process exits.
func (m *Manager) Spawn(id string, ad agent.Adapter, workingDir, model string, secrets map[string]string) error {
	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.SessionLimit, "maximum concurrent agents reached (%d)", m.maxSessions)
	}
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.SessionExists, "session already exists: %s", id)
	}
	m.mu.Unlock()

	return m.spawnLocked(id, ad, workingDir, model, secrets, 0)
}

func (m *Manager) spawnLocked(id string, ad agent.Adapter, workingDir, model string, secrets map[string]string, epoch int) error {
	command, args := ad.BuildCommand(model)
	cmd := buildCmd(command, args, workingDir, ad.EnvVars(), secrets)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: defaultRows, Cols: defaultCols})
	if err != nil {
		return kernelerr.Wrap(kernelerr.IoError, err, "starting pty for session %s", id)
	}

	sess := &session{ptmx: ptmx, proc: cmd.Process, alive: true, epoch: epoch}

	m.mu.Lock()
	_, exists := m.sessions[id]
	full := len(m.sessions) >= m.maxSessions
	if !exists && !full {
		m.sessions[id] = sess
	}
	m.mu.Unlock()
	if exists || full {
		_ = cmd.Process.Kill()
		_ = ptmx.Close()
		if exists {
			return kernelerr.New(kernelerr.SessionExists, "session already exists: %s", id)
		}
		return kernelerr.New(kernelerr.SessionLimit, "maximum concurrent agents reached (%d)", m.maxSessions)
	}

	go m.readLoop(id, sess)

	return nil
}

func buildCmd(command string, args []string, workingDir string, env, secrets map[string]string) *exec.Cmd {
	cmd := exec.Command(command, args...)
	cmd.Dir = workingDir

	merged := os.Environ()
	for k, v := range env {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range secrets {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	merged = append(merged, "FORCE_COLOR=1", "TERM=xterm-256color")
	cmd.Env = merged
	return cmd
}

func (m *Manager) readLoop(id string, sess *session) {
	outputTopic := fmt.Sprintf("pty-output-%s", id)
	exitTopic := fmt.Sprintf("pty-exit-%s", id)

	buf := make([]byte, 32*1024)
	var batch []byte
	lastFlush := time.Now()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.bus.Emit(outputTopic, string(batch))
		batch = batch[:0]
		lastFlush = time.Now()
	}

	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			batch = append(batch, buf[:n]...)
			if time.Since(lastFlush) >= batchInterval || len(batch) > batchMaxBytes {
				flush()
			}
		}
		if err != nil {
			break
		}
	}
	flush()

	sess.markDead()
	m.bus.Emit(exitTopic, nil)
}

// Write sends data followed by a newline to id's PTY stdin.
func (m *Manager) Write(id string, data string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	if _, err := sess.ptmx.Write([]byte(data + "\n")); err != nil {
		return kernelerr.Wrap(kernelerr.IoError, err, "writing to session %s", id)
	}
	return nil
}

// Resize adjusts id's PTY window size.
func (m *Manager) Resize(id string, rows, cols uint16) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	if err := pty.Setsize(sess.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return kernelerr.Wrap(kernelerr.IoError, err, "resizing session %s", id)
	}
	return nil
}

// Kill terminates id's process and removes the session.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	sess.markDead()
	if sess.proc != nil {
		_ = sess.proc.Kill()
	}
	_ = sess.ptmx.Close()
	return nil
}

// SwitchAgentModel kills the current session for id, if any, and
// respawns it with a new model, bumping the per-session epoch so
// callers can distinguish output belonging to the old process from the
// new one (the previous epoch's exit event is expected and should not
// be treated as an unexpected crash).
func (m *Manager) SwitchAgentModel(id string, ad agent.Adapter, workingDir, model string, secrets map[string]string) error {
	m.mu.Lock()
	prev, existed := m.sessions[id]
	nextEpoch := 0
	if existed {
		nextEpoch = prev.epoch + 1
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if existed {
		prev.markDead()
		if prev.proc != nil {
			_ = prev.proc.Kill()
		}
		_ = prev.ptmx.Close()
	}

	return m.spawnLocked(id, ad, workingDir, model, secrets, nextEpoch)
}

// Epoch returns the current epoch counter for id, or -1 if unknown.
func (m *Manager) Epoch(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return -1
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.epoch
}

// IsAlive reports whether id's session is live.
func (m *Manager) IsAlive(id string) bool {
	sess, err := m.get(id)
	if err != nil {
		return false
	}
	return sess.isAlive()
}

// ActiveSessions returns the IDs of every currently live session.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id, sess := range m.sessions {
		if sess.isAlive() {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, kernelerr.New(kernelerr.NotFound, "no session: %s", id)
	}
	return sess, nil
}
