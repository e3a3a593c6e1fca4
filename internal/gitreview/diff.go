package gitreview

import (
	"strconv"
	"strings"
)

// ComputeDiff runs a unified diff against the merge-base of HEAD and base,
// optionally scoped to paths, and parses it into FileDiffs.
func ComputeDiff(worktreePath, baseBranch string, paths []string) ([]FileDiff, error) {
	baseSHA, err := resolveMergeBase(worktreePath, baseBranch)
	if err != nil {
		return nil, err
	}

	args := []string{"diff", baseSHA + "...HEAD", "--unified=3", "-M", "-C"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	out := gitAllowEmpty(worktreePath, args...)
	return parseUnifiedDiff(out), nil
}

func parseStatusLetter(letter string) FileStatus {
	switch {
	case letter == "A":
		return StatusAdded
	case letter == "D":
		return StatusDeleted
	case letter == "M":
		return StatusModified
	case strings.HasPrefix(letter, "R"):
		return StatusRenamed
	case strings.HasPrefix(letter, "C"):
		return StatusCopied
	default:
		return StatusModified
	}
}

func parseHunkHeader(header string) (oldStart, oldCount, newStart, newCount int, ok bool) {
	h := strings.TrimPrefix(header, "@@ ")
	if h == header {
		return 0, 0, 0, 0, false
	}
	atEnd := strings.Index(h, " @@")
	if atEnd < 0 {
		return 0, 0, 0, 0, false
	}
	rangePart := h[:atEnd]
	parts := strings.Fields(rangePart)
	if len(parts) < 2 {
		return 0, 0, 0, 0, false
	}
	oldRange := strings.TrimPrefix(parts[0], "-")
	newRange := strings.TrimPrefix(parts[1], "+")
	if oldRange == parts[0] || newRange == parts[1] {
		return 0, 0, 0, 0, false
	}
	oldStart, oldCount = parseRange(oldRange)
	newStart, newCount = parseRange(newRange)
	return oldStart, oldCount, newStart, newCount, true
}

func parseRange(r string) (start, count int) {
	if idx := strings.IndexByte(r, ','); idx >= 0 {
		s, _ := strconv.Atoi(r[:idx])
		c, _ := strconv.Atoi(r[idx+1:])
		return s, c
	}
	s, _ := strconv.Atoi(r)
	return s, 1
}

func parseDiffGitHeader(header string) (oldPath, newPath string) {
	rest := strings.TrimPrefix(header, "diff --git ")
	if aRest, ok := strings.CutPrefix(rest, "a/"); ok {
		if bIdx := strings.Index(aRest, " b/"); bIdx >= 0 {
			return aRest[:bIdx], aRest[bIdx+3:]
		}
	}
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 2 {
		old := strings.TrimPrefix(parts[0], "a/")
		new_ := strings.TrimPrefix(parts[1], "b/")
		return old, new_
	}
	return "", ""
}

func parseUnifiedDiff(diffOutput string) []FileDiff {
	var files []FileDiff
	// Drop the trailing newline first: strings.Split would otherwise leave a
	// final empty element, which the hunk loop below reads as a context line.
	lines := strings.Split(strings.TrimSuffix(diffOutput, "\n"), "\n")
	n := len(lines)
	i := 0

	for i < n {
		if !strings.HasPrefix(lines[i], "diff --git ") {
			i++
			continue
		}
		diffHeader := lines[i]
		i++

		oldPathRaw, newPathRaw := parseDiffGitHeader(diffHeader)

		status := StatusModified
		var oldPath *string
		binary := false
		var hunks []DiffHunk

		for i < n && !strings.HasPrefix(lines[i], "diff --git ") {
			line := lines[i]

			switch {
			case strings.HasPrefix(line, "new file mode"):
				status = StatusAdded
				i++
			case strings.HasPrefix(line, "deleted file mode"):
				status = StatusDeleted
				i++
			case strings.HasPrefix(line, "rename from "):
				p := strings.TrimPrefix(line, "rename from ")
				oldPath = &p
				status = StatusRenamed
				i++
			case strings.HasPrefix(line, "rename to "):
				i++
			case strings.HasPrefix(line, "copy from "):
				p := strings.TrimPrefix(line, "copy from ")
				oldPath = &p
				status = StatusCopied
				i++
			case strings.HasPrefix(line, "copy to "):
				i++
			case strings.HasPrefix(line, "similarity index"),
				strings.HasPrefix(line, "dissimilarity index"),
				strings.HasPrefix(line, "index "),
				strings.HasPrefix(line, "old mode"),
				strings.HasPrefix(line, "new mode"):
				i++
			case line == "Binary files differ" || strings.HasPrefix(line, "Binary files ") || strings.Contains(line, "Binary files"):
				binary = true
				i++
			case strings.HasPrefix(line, "GIT binary patch"):
				binary = true
				i++
				for i < n && !strings.HasPrefix(lines[i], "diff --git ") {
					i++
				}
			case strings.HasPrefix(line, "--- "):
				i++ // skip ---
				if i < n && strings.HasPrefix(lines[i], "+++ ") {
					i++ // skip +++
				}
			case strings.HasPrefix(line, "@@ "):
				header := line
				oldStart, oldCount, newStart, newCount, _ := parseHunkHeader(line)
				i++

				var hunkLines []DiffLine
				oldLineno := oldStart
				newLineno := newStart

				for i < n {
					l := lines[i]
					if strings.HasPrefix(l, "diff --git ") || strings.HasPrefix(l, "@@ ") {
						break
					}

					switch {
					case strings.HasPrefix(l, "+"):
						content := l[1:]
						ln := newLineno
						hunkLines = append(hunkLines, DiffLine{Kind: "add", NewLineno: &ln, Content: content})
						newLineno++
					case strings.HasPrefix(l, "-"):
						content := l[1:]
						ln := oldLineno
						hunkLines = append(hunkLines, DiffLine{Kind: "delete", OldLineno: &ln, Content: content})
						oldLineno++
					case strings.HasPrefix(l, " ") || l == "":
						content := ""
						if l != "" {
							content = l[1:]
						}
						oldLn, newLn := oldLineno, newLineno
						hunkLines = append(hunkLines, DiffLine{Kind: "context", OldLineno: &oldLn, NewLineno: &newLn, Content: content})
						oldLineno++
						newLineno++
					case l == "\\ No newline at end of file":
						i++
						continue
					default:
						goto doneHunk
					}
					i++
				}
			doneHunk:

				hunks = append(hunks, DiffHunk{
					OldStart: oldStart,
					OldCount: oldCount,
					NewStart: newStart,
					NewCount: newCount,
					Header:   header,
					Lines:    hunkLines,
				})
			default:
				i++
			}
		}

		additions, deletions := 0, 0
		for _, h := range hunks {
			for _, l := range h.Lines {
				switch l.Kind {
				case "add":
					additions++
				case "delete":
					deletions++
				}
			}
		}

		path := newPathRaw
		if status == StatusRenamed && oldPath == nil {
			p := oldPathRaw
			oldPath = &p
		}

		files = append(files, FileDiff{
			Path:      path,
			OldPath:   oldPath,
			Status:    status,
			Binary:    binary,
			Hunks:     hunks,
			Additions: additions,
			Deletions: deletions,
		})
	}

	return files
}
