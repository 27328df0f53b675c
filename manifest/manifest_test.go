package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/trompe/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[run]
entry = "build/main.tro"

[interp]
stack-size = 64
max-depth = 32
trace = true

[log]
verbosity = 2
file = "trompe.log"

[cache]
path = "/var/cache/trompe.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "build", "main.tro"); got != want {
		t.Errorf("entry path = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.LogPath(), filepath.Join(m.Dir, "trompe.log"); got != want {
		t.Errorf("log path = %q, want %q", got, want)
	}
	if m.CachePath() != "/var/cache/trompe.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}

	opts := m.Options()
	if opts.StackSize != 64 || opts.MaxDepth != 32 || !opts.Trace {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.EntryPath() != "" {
		t.Errorf("entry path = %q, want empty", m.EntryPath())
	}
	if m.LogPath() != "" {
		t.Errorf("log path = %q, want empty", m.LogPath())
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".trompe", "cache.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if got := m.Options(); got != vm.DefaultOptions() {
		t.Errorf("options = %+v, want defaults", got)
	}
}

func TestLoadManifestRejectsNegativeLimits(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[interp]
max-depth = -1
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative max-depth")
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname=")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[project]
name = "found"
`)
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "found" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestNilManifestOptions(t *testing.T) {
	var m *Manifest
	if got := m.Options(); got != vm.DefaultOptions() {
		t.Errorf("options = %+v", got)
	}
}
