// Package trust implements the content-addressed trust engine: it hashes
// a repo's configuration and snippets files and gates script execution on
// an explicit grant that is invalidated the moment either file's bytes
// change. Grounded on original_source/trust.rs.
package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/kernelerr"
)

// Status is the outcome of a CheckTrust call.
type Status struct {
	Trusted      bool
	ChangedFiles []string // non-empty iff this is a "Changed" result
}

func (s Status) IsTrusted() bool {
	return s.Trusted && len(s.ChangedFiles) == 0
}

// Entry is one repo's trust record.
type Entry struct {
	Trusted           bool   `json:"trusted"`
	GrantedAt         string `json:"granted_at,omitempty"`
	ConfigHash        string `json:"config_hash,omitempty"`
	SnippetsHash      string `json:"snippets_hash,omitempty"`
	LegacySetupHash   string `json:"setup_script_hash,omitempty"`
}

type store struct {
	TrustAllRepos bool             `json:"trust_all_repos"`
	Entries       map[string]Entry `json:"entries"`
}

// Engine is the process-wide trust store, file-backed at path.
type Engine struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

// New returns a trust engine backed by the JSON file at path.
func New(path string, log zerolog.Logger) *Engine {
	return &Engine{path: path, log: log.With().Str("subsystem", "trust").Logger()}
}

// ConfigPath and SnippetsPath are the two logical filenames a trust entry
// hashes, used both as map keys and in Changed-result reporting.
const (
	ConfigPath   = "config.json"
	SnippetsPath = "snippets.json"
)

// HashFile returns the sha256 hex digest of a file's contents and true,
// or ("", false) if the file does not exist. A file that exists but is
// empty still hashes to a real digest (sha256 of zero bytes), so the
// bool, not an empty string, is what callers must check for "missing" —
// a file created empty after GrantTrust is reported as Changed rather
// than silently matching a prior "missing" state. Errors other than
// "not exist" (permission denied, etc) are also reported as not-present
// since the caller has no way to read the file's current content either way.
func HashFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

func (e *Engine) load() (*store, error) {
	lock := flock.New(e.path + ".lock")
	_ = lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return &store{Entries: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.IoError, err, "reading trust store")
	}
	var s store
	if err := json.Unmarshal(data, &s); err != nil {
		e.log.Warn().Err(err).Msg("trust store corrupt, resetting to defaults")
		return &store{Entries: make(map[string]Entry)}, nil
	}
	if s.Entries == nil {
		s.Entries = make(map[string]Entry)
	}
	return &s, nil
}

func (e *Engine) save(s *store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.SerializationErr, err, "marshaling trust store")
	}
	lock := flock.New(e.path + ".lock")
	_ = lock.Lock()
	defer lock.Unlock()
	return os.WriteFile(e.path, data, 0644)
}

// CheckTrust recomputes hashes for configPath/snippetsPath and compares
// them to the recorded entry for repoPath.
func (e *Engine) CheckTrust(repoPath, configFilePath, snippetsFilePath string) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return Status{}, err
	}

	if s.TrustAllRepos {
		return Status{Trusted: true}, nil
	}

	entry, ok := s.Entries[repoPath]
	if !ok || !entry.Trusted {
		return Status{Trusted: false}, nil
	}

	currentConfigHash, _ := HashFile(configFilePath)
	currentSnippetsHash, _ := HashFile(snippetsFilePath)

	recordedConfigHash := entry.ConfigHash
	upgraded := false
	if recordedConfigHash == "" && entry.LegacySetupHash != "" {
		if entry.LegacySetupHash == currentConfigHash {
			recordedConfigHash = currentConfigHash
			upgraded = true
		} else {
			recordedConfigHash = entry.LegacySetupHash
		}
	}

	var changed []string
	if recordedConfigHash != currentConfigHash {
		changed = append(changed, ConfigPath)
	}
	if entry.SnippetsHash != currentSnippetsHash {
		changed = append(changed, SnippetsPath)
	}

	if upgraded && len(changed) == 0 {
		entry.ConfigHash = currentConfigHash
		s.Entries[repoPath] = entry
		if err := e.save(s); err != nil {
			return Status{}, err
		}
	}

	if len(changed) > 0 {
		return Status{Trusted: true, ChangedFiles: changed}, nil
	}
	return Status{Trusted: true}, nil
}

// GrantTrust records the current hashes and marks repoPath trusted.
func (e *Engine) GrantTrust(repoPath, configFilePath, snippetsFilePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return err
	}

	configHash, _ := HashFile(configFilePath)
	snippetsHash, _ := HashFile(snippetsFilePath)
	s.Entries[repoPath] = Entry{
		Trusted:      true,
		GrantedAt:    time.Now().UTC().Format(time.RFC3339),
		ConfigHash:   configHash,
		SnippetsHash: snippetsHash,
	}
	return e.save(s)
}

// RevokeTrust marks repoPath untrusted, retaining its recorded hashes.
func (e *Engine) RevokeTrust(repoPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load()
	if err != nil {
		return err
	}
	entry, ok := s.Entries[repoPath]
	if !ok {
		return nil
	}
	entry.Trusted = false
	s.Entries[repoPath] = entry
	return e.save(s)
}
