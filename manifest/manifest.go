// Package manifest handles trompe.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/trompe/vm"
)

// FileName is the name of the project configuration file.
const FileName = "trompe.toml"

// Manifest represents a trompe.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Run     Run          `toml:"run"`
	Interp  InterpConfig `toml:"interp"`
	Log     LogConfig    `toml:"log"`
	Cache   CacheConfig  `toml:"cache"`

	// Dir is the directory containing the trompe.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Run names what the runner executes when no file is given.
type Run struct {
	Entry string `toml:"entry"` // object file, relative to Dir
}

// InterpConfig tunes the execution engine.
type InterpConfig struct {
	StackSize int  `toml:"stack-size"`
	MaxDepth  int  `toml:"max-depth"`
	Trace     bool `toml:"trace"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"` // empty means stderr
}

// CacheConfig locates the object-file cache.
type CacheConfig struct {
	Path string `toml:"path"`
}

// Load parses a trompe.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".trompe", "cache.db")
	}
	if m.Interp.StackSize < 0 || m.Interp.MaxDepth < 0 {
		return nil, fmt.Errorf("%s: stack-size and max-depth must not be negative", path)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a trompe.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Options returns the interpreter options. Unset values fall back to the
// engine defaults.
func (m *Manifest) Options() vm.Options {
	opts := vm.DefaultOptions()
	if m == nil {
		return opts
	}
	if m.Interp.StackSize > 0 {
		opts.StackSize = m.Interp.StackSize
	}
	if m.Interp.MaxDepth > 0 {
		opts.MaxDepth = m.Interp.MaxDepth
	}
	opts.Trace = m.Interp.Trace
	return opts
}

// EntryPath returns the absolute path of the entry object file, or "" if
// none is configured.
func (m *Manifest) EntryPath() string {
	if m.Run.Entry == "" {
		return ""
	}
	return m.resolve(m.Run.Entry)
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
