package shortcuts

import "testing"

func withHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadReturnsDefaultsWhenUnset(t *testing.T) {
	withHome(t)
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m["quit"] != "ctrl+q" {
		t.Fatalf("quit = %q, want ctrl+q", m["quit"])
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withHome(t)
	m := Default()
	m["quit"] = "ctrl+shift+q"
	if err := Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded["quit"] != "ctrl+shift+q" {
		t.Fatalf("quit = %q, want ctrl+shift+q", loaded["quit"])
	}
}

func TestSaveOverwritesPreviousMap(t *testing.T) {
	withHome(t)
	if err := Save(Map{"only-one": "ctrl+o"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded["only-one"] != "ctrl+o" {
		t.Fatalf("loaded = %+v, want only {only-one: ctrl+o}", loaded)
	}
}
