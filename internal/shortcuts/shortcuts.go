// Package shortcuts persists the user's keyboard-shortcut map: action
// name -> key combo string, stored as a single JSON document under the
// global state directory. Grounded on internal/snippet's global-store
// load/save pattern, trimmed to a single file with no repo scope.
package shortcuts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/loomkit/loom/internal/fileutil"
	"github.com/loomkit/loom/internal/kernelerr"
)

const fileName = "shortcuts.json"

// Map is action name -> key combo, e.g. "send-to-agent" -> "ctrl+enter".
type Map map[string]string

type file struct {
	Version   int `json:"version"`
	Shortcuts Map `json:"shortcuts"`
}

func path() (string, error) {
	return fileutil.StatePath(fileName)
}

// Default returns the built-in shortcut map used when no shortcuts.json
// exists yet.
func Default() Map {
	return Map{
		"send-to-agent":   "ctrl+enter",
		"new-workspace":   "ctrl+n",
		"next-workspace":  "ctrl+tab",
		"merge-workspace": "ctrl+m",
		"stop-agent":      "ctrl+c",
		"open-diff":       "ctrl+d",
		"run-snippet":     "ctrl+r",
		"quit":            "ctrl+q",
	}
}

// Load returns the persisted shortcut map, or Default() if none has
// been saved yet.
func Load() (Map, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, kernelerr.Wrap(kernelerr.SerializationErr, err, "parsing shortcuts file")
	}
	if f.Shortcuts == nil {
		f.Shortcuts = Default()
	}
	return f.Shortcuts, nil
}

// Save overwrites the persisted shortcut map with m.
func Save(m Map) error {
	p, err := path()
	if err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Dir(p)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(file{Version: 1, Shortcuts: m}, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.SerializationErr, err, "marshaling shortcuts file")
	}
	return os.WriteFile(p, data, 0644)
}
