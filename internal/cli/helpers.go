package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveRepo finds the git repository root starting from dir (defaults
// to the current directory), walking up until a .git entry is found.
func resolveRepo(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	repoDir := findGitRoot(abs)
	if repoDir == "" {
		return "", fmt.Errorf("could not find git repository root from %s", abs)
	}
	return repoDir, nil
}

// findGitRoot walks up from dir looking for a .git entry.
func findGitRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// findWorkspace resolves a workspace ID argument, accepting either a full
// ID or an unambiguous ID prefix (the short IDs loom prints everywhere).
func findWorkspace(idArg string) (string, error) {
	for _, ws := range k.ListWorkspaces("") {
		if ws.ID == idArg {
			return ws.ID, nil
		}
	}
	var match string
	for _, ws := range k.ListWorkspaces("") {
		if len(idArg) > 0 && len(ws.ID) >= len(idArg) && ws.ID[:len(idArg)] == idArg {
			if match != "" {
				return "", fmt.Errorf("workspace id %q is ambiguous", idArg)
			}
			match = ws.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no workspace matching %q", idArg)
	}
	return match, nil
}
