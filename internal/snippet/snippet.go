// Package snippet implements the named-command store (global and
// per-repo) and its trust-gated execution path. Grounded on
// original_source/snippets.rs; execution is new relative to the
// original, modeled on a line-buffered subprocess-streaming pattern.
package snippet

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loomkit/loom/internal/eventbus"
	"github.com/loomkit/loom/internal/fileutil"
	"github.com/loomkit/loom/internal/kernelerr"
	"github.com/loomkit/loom/internal/trust"
)

// Category orders snippets for palette display: setup < build < test <
// lint < deploy < custom.
type Category string

const (
	CategorySetup  Category = "setup"
	CategoryBuild  Category = "build"
	CategoryTest   Category = "test"
	CategoryLint   Category = "lint"
	CategoryDeploy Category = "deploy"
	CategoryCustom Category = "custom"
)

var categoryRank = map[Category]int{
	CategorySetup:  0,
	CategoryBuild:  1,
	CategoryTest:   2,
	CategoryLint:   3,
	CategoryDeploy: 4,
	CategoryCustom: 5,
}

// Snippet is a single named, executable shell command.
type Snippet struct {
	Name        string   `json:"name"`
	Command     string   `json:"command"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category,omitempty"`
	Keybinding  string   `json:"keybinding,omitempty"`
}

func (s *Snippet) applyDefaults() {
	if s.Category == "" {
		s.Category = CategoryCustom
	}
}

// file is the on-disk container for a snippets.json.
type file struct {
	Version  int       `json:"version"`
	Snippets []Snippet `json:"snippets"`
}

const snippetsFileName = "snippets.json"

func globalPath() (string, error) {
	return fileutil.StatePath(snippetsFileName)
}

func repoPath(repo string) string {
	return fileutil.RepoStatePath(repo, snippetsFileName)
}

func loadFile(path string) file {
	data, err := os.ReadFile(path)
	if err != nil {
		return file{Version: 1}
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return file{Version: 1}
	}
	if f.Version == 0 {
		f.Version = 1
	}
	for i := range f.Snippets {
		f.Snippets[i].applyDefaults()
	}
	return f
}

func saveFile(path string, f file) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return kernelerr.Wrap(kernelerr.SerializationErr, err, "marshaling snippets file")
	}
	return os.WriteFile(path, data, 0644)
}

// ListMerged returns global and repo snippets merged by name (repo
// wins), sorted by category then name. repoDir may be "" to list
// global snippets only.
func ListMerged(repoDir string) ([]Snippet, error) {
	gPath, err := globalPath()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Snippet)
	for _, s := range loadFile(gPath).Snippets {
		byName[s.Name] = s
	}
	if repoDir != "" {
		for _, s := range loadFile(repoPath(repoDir)).Snippets {
			byName[s.Name] = s
		}
	}

	out := make([]Snippet, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := categoryRank[out[i].Category], categoryRank[out[j].Category]
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Source identifies which store a resolved snippet came from.
type Source int

const (
	SourceRepo Source = iota
	SourceGlobal
)

// Resolve looks up name, checking the repo store first, then global.
func Resolve(repoDir, name string) (Snippet, bool, error) {
	s, _, found, err := ResolveScoped(repoDir, name)
	return s, found, err
}

// ResolveScoped is Resolve plus which store the hit came from, so
// callers can tell a repo-scoped snippet (subject to that repo's trust
// gate) apart from one that only exists in the global store (not
// subject to any repo's trust gate, since it carries no repo-authored
// content).
func ResolveScoped(repoDir, name string) (Snippet, Source, bool, error) {
	for _, s := range loadFile(repoPath(repoDir)).Snippets {
		if s.Name == name {
			return s, SourceRepo, true, nil
		}
	}
	gPath, err := globalPath()
	if err != nil {
		return Snippet{}, SourceGlobal, false, err
	}
	for _, s := range loadFile(gPath).Snippets {
		if s.Name == name {
			return s, SourceGlobal, true, nil
		}
	}
	return Snippet{}, SourceGlobal, false, nil
}

// Save upserts snip by name into the repo store (repoDir != "") or the
// global store (repoDir == "").
func Save(repoDir string, snip Snippet) error {
	snip.applyDefaults()
	path, err := resolveStorePath(repoDir)
	if err != nil {
		return err
	}
	f := loadFile(path)
	replaced := false
	for i := range f.Snippets {
		if f.Snippets[i].Name == snip.Name {
			f.Snippets[i] = snip
			replaced = true
			break
		}
	}
	if !replaced {
		f.Snippets = append(f.Snippets, snip)
	}
	return saveFile(path, f)
}

// Delete removes name from the repo store (repoDir != "") or the
// global store (repoDir == "").
func Delete(repoDir, name string) error {
	path, err := resolveStorePath(repoDir)
	if err != nil {
		return err
	}
	f := loadFile(path)
	before := len(f.Snippets)
	out := f.Snippets[:0]
	for _, s := range f.Snippets {
		if s.Name != name {
			out = append(out, s)
		}
	}
	f.Snippets = out
	if len(f.Snippets) == before {
		return kernelerr.New(kernelerr.NotFound, "snippet not found: %s", name)
	}
	return saveFile(path, f)
}

func resolveStorePath(repoDir string) (string, error) {
	if repoDir != "" {
		return repoPath(repoDir), nil
	}
	return globalPath()
}

// MigrateLegacy converts a RepoConfig's flat name->command map into a
// snippets.json the first time one is needed, leaving an existing file
// untouched.
func MigrateLegacy(repoDir string, legacy map[string]string) error {
	if len(legacy) == 0 {
		return nil
	}
	target := repoPath(repoDir)
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	snippets := make([]Snippet, 0, len(legacy))
	for name, command := range legacy {
		snippets = append(snippets, Snippet{Name: name, Command: command, Category: CategoryCustom})
	}
	sort.Slice(snippets, func(i, j int) bool { return snippets[i].Name < snippets[j].Name })
	return saveFile(target, file{Version: 1, Snippets: snippets})
}

// afterFirstResolveForTest runs between RunV2's initial resolve and its
// TOCTOU re-resolve; tests override it to inject a concurrent edit.
var afterFirstResolveForTest = func() {}

// Runner executes trust-gated snippets, streaming stdout/stderr lines
// onto the event bus.
type Runner struct {
	trust *trust.Engine
	bus   *eventbus.Bus
	log   zerolog.Logger
}

// NewRunner returns a snippet runner backed by a trust engine (for the
// execution gate) and an event bus (for output/completion events).
func NewRunner(trustEngine *trust.Engine, bus *eventbus.Bus, log zerolog.Logger) *Runner {
	return &Runner{trust: trustEngine, bus: bus, log: log.With().Str("subsystem", "snippet").Logger()}
}

// RunResult is the terminal outcome of Run.
type RunResult struct {
	ID       string
	ExitCode int
	Success  bool
}

// resolveAndGate resolves name against repoPath's stores and, if the hit
// is repo-scoped, checks repoPath's trust status. A snippet that only
// exists in the global store carries no repo-authored content, so it
// bypasses the repo trust gate entirely: it's the user's own command,
// not something an untrusted repo could have smuggled in.
func (r *Runner) resolveAndGate(repoPath, configPath, snippetsPath, name string) (Snippet, error) {
	snip, source, found, err := ResolveScoped(repoPath, name)
	if err != nil {
		return Snippet{}, err
	}
	if !found {
		return Snippet{}, kernelerr.New(kernelerr.NotFound, "snippet not found: %s", name)
	}
	if source == SourceGlobal {
		return snip, nil
	}
	status, err := r.trust.CheckTrust(repoPath, configPath, snippetsPath)
	if err != nil {
		return Snippet{}, err
	}
	if !status.IsTrusted() {
		if len(status.ChangedFiles) > 0 {
			return Snippet{}, kernelerr.New(kernelerr.TrustDrift, "repo %s changed since trust was granted: %v", repoPath, status.ChangedFiles)
		}
		return Snippet{}, kernelerr.New(kernelerr.Untrusted, "repo %s is not trusted for snippet execution", repoPath)
	}
	return snip, nil
}

// Run resolves name against repoPath's config/trust/snippet store
// (skipping the trust gate for a global-only snippet) and executes it
// with workingDir as the process's cwd, streaming output to
// "snippet-output-<id>" and completion to "snippet-complete-<id>".
// repoPath and workingDir are the same directory for a repo with no
// workspace worktrees; a workspace passes its repo root (where snippets
// and trust are recorded) and its own worktree (where the command
// should actually run) separately.
func (r *Runner) Run(repoPath, workingDir, configPath, snippetsPath, name string) (*RunResult, error) {
	snip, err := r.resolveAndGate(repoPath, configPath, snippetsPath, name)
	if err != nil {
		return nil, err
	}
	return r.exec(snip.Command, workingDir), nil
}

// RunV2 is Run plus a TOCTOU guard: immediately before spawning, it
// re-resolves name and aborts if the command body changed since the
// first resolve (someone edited snippets.json between the check and the
// exec). An aborted guard publishes a RunResult with exit code -1 on
// "snippet-complete-<id>" under a fresh id, which is not returned to the
// caller, and returns a TrustDrift error.
func (r *Runner) RunV2(repoPath, workingDir, configPath, snippetsPath, name string) (*RunResult, error) {
	snip, err := r.resolveAndGate(repoPath, configPath, snippetsPath, name)
	if err != nil {
		return nil, err
	}

	afterFirstResolveForTest()

	reResolved, _, found, err := ResolveScoped(repoPath, name)
	if err != nil {
		return nil, err
	}
	if !found || reResolved.Command != snip.Command {
		id := uuid.NewString()
		result := &RunResult{ID: id, ExitCode: -1, Success: false}
		r.bus.Emit(fmt.Sprintf("snippet-complete-%s", id), result)
		return nil, kernelerr.New(kernelerr.TrustDrift, "snippet %q changed between resolve and execute", name)
	}

	return r.exec(snip.Command, workingDir), nil
}

// exec runs command in workingDir, streaming stdout/stderr lines onto
// the event bus and publishing the terminal RunResult.
func (r *Runner) exec(command, workingDir string) *RunResult {
	id := uuid.NewString()
	outputTopic := fmt.Sprintf("snippet-output-%s", id)
	completeTopic := fmt.Sprintf("snippet-complete-%s", id)

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = workingDir
	cmd.Env = os.Environ()

	lw := &lineWriter{onLine: func(line string) { r.bus.Emit(outputTopic, line) }}
	cmd.Stdout = lw
	cmd.Stderr = lw

	err := cmd.Run()
	lw.flush()

	exitCode := 0
	success := err == nil
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	result := &RunResult{ID: id, ExitCode: exitCode, Success: success}
	r.bus.Emit(completeTopic, result)
	return result
}

// lineWriter accumulates bytes and emits one onLine call per newline,
// flushing any trailing partial line when the process exits.
type lineWriter struct {
	onLine  func(string)
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)
	for {
		idx := indexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		w.onLine(string(w.partial[:idx]))
		w.partial = w.partial[idx+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.partial) > 0 {
		w.onLine(string(w.partial))
		w.partial = nil
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
