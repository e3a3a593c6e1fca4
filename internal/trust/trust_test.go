package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "trust.json"), zerolog.Nop()), dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestGrantThenCheckIsTrusted(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, `{"a":1}`)
	writeFile(t, snip, `{"b":2}`)

	if err := eng.GrantTrust("repo1", cfg, snip); err != nil {
		t.Fatalf("GrantTrust: %v", err)
	}
	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if !status.IsTrusted() {
		t.Fatalf("status = %+v, want trusted", status)
	}
}

func TestConfigDriftYieldsChanged(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, "X")
	writeFile(t, snip, "{}")

	if err := eng.GrantTrust("repo1", cfg, snip); err != nil {
		t.Fatalf("GrantTrust: %v", err)
	}
	writeFile(t, cfg, "Y")

	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if status.IsTrusted() {
		t.Fatalf("status = %+v, want changed", status)
	}
	if len(status.ChangedFiles) != 1 || status.ChangedFiles[0] != ConfigPath {
		t.Fatalf("changed files = %v, want [%s]", status.ChangedFiles, ConfigPath)
	}
}

func TestSnippetsAppearingAfterGrantYieldsChanged(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, "X")
	// snippets.json does not exist at grant time

	if err := eng.GrantTrust("repo1", cfg, snip); err != nil {
		t.Fatalf("GrantTrust: %v", err)
	}
	writeFile(t, snip, "{}")

	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if len(status.ChangedFiles) != 1 || status.ChangedFiles[0] != SnippetsPath {
		t.Fatalf("changed files = %v, want [%s]", status.ChangedFiles, SnippetsPath)
	}
}

func TestHashFileDistinguishesMissingFromEmpty(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.json")
	empty := filepath.Join(dir, "empty.json")
	writeFile(t, empty, "")

	hash, ok := HashFile(missing)
	if ok || hash != "" {
		t.Fatalf("HashFile(missing) = (%q, %v), want (\"\", false)", hash, ok)
	}

	hash, ok = HashFile(empty)
	if !ok || hash == "" {
		t.Fatalf("HashFile(empty) = (%q, %v), want (non-empty, true)", hash, ok)
	}
}

func TestSnippetsCreatedEmptyAfterGrantYieldsChanged(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, "X")
	// snippets.json does not exist at grant time

	if err := eng.GrantTrust("repo1", cfg, snip); err != nil {
		t.Fatalf("GrantTrust: %v", err)
	}
	writeFile(t, snip, "")

	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if len(status.ChangedFiles) != 1 || status.ChangedFiles[0] != SnippetsPath {
		t.Fatalf("changed files = %v, want [%s] (empty file created after grant-while-absent)", status.ChangedFiles, SnippetsPath)
	}
}

func TestRevokeThenCheckIsUntrusted(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, "X")
	writeFile(t, snip, "Y")

	if err := eng.GrantTrust("repo1", cfg, snip); err != nil {
		t.Fatalf("GrantTrust: %v", err)
	}
	if err := eng.RevokeTrust("repo1"); err != nil {
		t.Fatalf("RevokeTrust: %v", err)
	}
	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if status.Trusted {
		t.Fatalf("status = %+v, want untrusted", status)
	}
}

func TestUnknownRepoIsUntrusted(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	status, err := eng.CheckTrust("never-granted", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if status.Trusted {
		t.Fatalf("status = %+v, want untrusted", status)
	}
}

func TestLegacyHashOpportunisticUpgrade(t *testing.T) {
	eng, dir := newEngine(t)
	cfg := filepath.Join(dir, "config.json")
	snip := filepath.Join(dir, "snippets.json")
	writeFile(t, cfg, "X")
	writeFile(t, snip, "Y")

	cfgHash, _ := HashFile(cfg)
	snipHash, _ := HashFile(snip)
	s := &store{Entries: map[string]Entry{
		"repo1": {
			Trusted:         true,
			LegacySetupHash: cfgHash,
			SnippetsHash:    snipHash,
		},
	}}
	if err := eng.save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	status, err := eng.CheckTrust("repo1", cfg, snip)
	if err != nil {
		t.Fatalf("CheckTrust: %v", err)
	}
	if !status.IsTrusted() {
		t.Fatalf("status = %+v, want trusted via legacy fallback", status)
	}

	loaded, err := eng.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Entries["repo1"].ConfigHash == "" {
		t.Fatalf("expected config_hash to be opportunistically populated")
	}
}
