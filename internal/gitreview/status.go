package gitreview

import (
	"sort"
	"strconv"
	"strings"
)

// ComputeStatus assembles the full review summary for a workspace.
func ComputeStatus(worktreePath, workspaceID, baseBranch string) (*WorktreeStatus, error) {
	baseSHA, err := resolveMergeBase(worktreePath, baseBranch)
	if err != nil {
		return nil, err
	}
	headOut, err := git(worktreePath, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	headSHA := strings.TrimSpace(headOut)

	revList, err := git(worktreePath, "rev-list", "--left-right", "--count", baseSHA+"...HEAD")
	if err != nil {
		return nil, err
	}
	counts := strings.Split(strings.TrimSpace(revList), "\t")
	behind, ahead := 0, 0
	if len(counts) > 0 {
		behind, _ = strconv.Atoi(counts[0])
	}
	if len(counts) > 1 {
		ahead, _ = strconv.Atoi(counts[1])
	}

	nameStatusOut := gitAllowEmpty(worktreePath, "diff", "--name-status", "-M", "-C", baseSHA+"...HEAD")
	numstatOut := gitAllowEmpty(worktreePath, "diff", "--numstat", "-M", "-C", baseSHA+"...HEAD")

	type statusEntry struct {
		status  FileStatus
		oldPath *string
	}
	statusMap := make(map[string]statusEntry)

	for _, line := range splitNonEmptyLines(nameStatusOut) {
		parts := strings.Split(line, "\t")
		switch len(parts) {
		case 2:
			statusMap[parts[1]] = statusEntry{status: parseStatusLetter(parts[0])}
		case 3:
			old := parts[1]
			statusMap[parts[2]] = statusEntry{status: parseStatusLetter(parts[0]), oldPath: &old}
		}
	}

	var files []FileChange
	totalAdditions, totalDeletions := 0, 0

	for _, line := range splitNonEmptyLines(numstatOut) {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}

		binary := parts[0] == "-" && parts[1] == "-"
		additions, _ := strconv.Atoi(parts[0])
		deletions, _ := strconv.Atoi(parts[1])

		var path string
		if len(parts) >= 4 {
			path = parts[3]
		} else {
			path = parts[2]
		}

		resolvedPath := path
		if strings.Contains(path, " => ") {
			resolvedPath = resolveArrowPath(path)
		}

		entry, ok := statusMap[resolvedPath]
		delete(statusMap, resolvedPath)
		status := FileStatus(StatusModified)
		var oldPath *string
		if ok {
			status = entry.status
			oldPath = entry.oldPath
		}

		totalAdditions += additions
		totalDeletions += deletions

		files = append(files, FileChange{
			Path:      resolvedPath,
			OldPath:   oldPath,
			Status:    status,
			Additions: additions,
			Deletions: deletions,
			Binary:    binary,
		})
	}

	conflictOut := gitAllowEmpty(worktreePath, "ls-files", "-u")
	var conflictFiles []string
	for _, line := range splitNonEmptyLines(conflictOut) {
		parts := strings.Split(line, "\t")
		if len(parts) > 1 {
			conflictFiles = append(conflictFiles, parts[1])
		}
	}
	conflictFiles = deduplicate(conflictFiles)

	return &WorktreeStatus{
		WorkspaceID:    workspaceID,
		BaseBranch:     baseBranch,
		HeadSHA:        headSHA,
		BaseSHA:        baseSHA,
		Ahead:          ahead,
		Behind:         behind,
		FilesChanged:   len(files),
		TotalAdditions: totalAdditions,
		TotalDeletions: totalDeletions,
		Files:          files,
		HasConflicts:   len(conflictFiles) > 0,
		ConflictFiles:  conflictFiles,
	}, nil
}

// ReadFileAtVersion reads path from either the worktree (Working) or the
// merge-base commit (Base).
func ReadFileAtVersion(worktreePath, path string, version FileVersion, baseBranch string) (string, error) {
	if version == FileVersionWorking {
		data, err := readFile(worktreePath, path)
		return data, err
	}
	baseSHA, err := resolveMergeBase(worktreePath, baseBranch)
	if err != nil {
		return "", err
	}
	return git(worktreePath, "show", baseSHA+":"+path)
}

func resolveArrowPath(path string) string {
	if start := strings.IndexByte(path, '{'); start >= 0 {
		if end := strings.IndexByte(path, '}'); end >= 0 {
			prefix := path[:start]
			suffix := path[end+1:]
			inner := path[start+1 : end]
			if idx := strings.Index(inner, " => "); idx >= 0 {
				return prefix + inner[idx+4:] + suffix
			}
		}
	}
	if idx := strings.Index(path, " => "); idx >= 0 {
		return path[idx+4:]
	}
	return path
}

func deduplicate(v []string) []string {
	if len(v) == 0 {
		return v
	}
	sort.Strings(v)
	out := v[:1]
	for _, s := range v[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
