// Package secret caches OS-keychain-backed secrets in memory for PTY
// env injection. Grounded on original_source/keychain.rs.
package secret

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"

	"github.com/loomkit/loom/internal/fileutil"
	"github.com/loomkit/loom/internal/kernelerr"
)

const service = "io.loomkit.loom.secrets"

const indexFile = "secret-keys.json"

// keyringGet/Set/Delete are indirections over github.com/zalando/go-keyring
// so tests can run without a real OS keychain available.
var (
	keyringGet    = keyring.Get
	keyringSet    = keyring.Set
	keyringDelete = keyring.Delete
)

// Store is the in-memory secret cache, backed by the OS keychain and an
// on-disk index of known key names (the keychain itself has no "list"
// operation).
type Store struct {
	mu    sync.RWMutex
	cache map[string]string
	log   zerolog.Logger
}

// Load reads the key index and populates the cache from the keychain,
// skipping any key that can no longer be retrieved.
func Load(log zerolog.Logger) (*Store, error) {
	s := &Store{
		cache: make(map[string]string),
		log:   log.With().Str("subsystem", "secret").Logger(),
	}
	keys, err := loadIndex()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		val, err := keyringGet(service, key)
		if err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("secret missing from keychain, dropping from cache")
			continue
		}
		s.cache[key] = val
	}
	return s, nil
}

// Get returns a cached secret and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// Set writes key to the keychain, updates the cache, and records key in
// the index.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyringSet(service, key, value); err != nil {
		return kernelerr.Wrap(kernelerr.SecretError, err, "writing secret %q to keychain", key)
	}
	s.cache[key] = value
	return addToIndex(key)
}

// Delete best-effort removes key from the keychain (a missing entry is
// not an error) and from the cache and index.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyringDelete(service, key); err != nil && err != keyring.ErrNotFound {
		s.log.Warn().Str("key", key).Err(err).Msg("keychain delete failed, continuing")
	}
	delete(s.cache, key)
	return removeFromIndex(key)
}

// ListKeys returns all known key names from the on-disk index.
func (s *Store) ListKeys() ([]string, error) {
	return loadIndex()
}

// EnvVars returns a snapshot copy of the cache suitable for merging into
// a spawned process's environment.
func (s *Store) EnvVars() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

func indexPath() (string, error) {
	return fileutil.StatePath(indexFile)
}

func loadIndex() ([]string, error) {
	path, err := indexPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.IoError, err, "reading secret index")
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, kernelerr.Wrap(kernelerr.SerializationErr, err, "parsing secret index")
	}
	return keys, nil
}

func saveIndex(keys []string) error {
	path, err := indexPath()
	if err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.SerializationErr, err, "marshaling secret index")
	}
	return os.WriteFile(path, data, 0600)
}

func addToIndex(key string) error {
	keys, err := loadIndex()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	return saveIndex(append(keys, key))
}

func removeFromIndex(key string) error {
	keys, err := loadIndex()
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return saveIndex(out)
}
