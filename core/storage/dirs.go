// Package storage provides platform-native directory resolution with XDG support.
package storage

import (
	"os"
	"path/filepath"
	"sync"
)

const appDir = "concierge"

// Dirs provides platform-native directory resolution with XDG support.
type Dirs struct {
	Config string // Service configuration (config.yaml, provider keys)
	Data   string // Persistent data (conversation state, docs index)
	Cache  string // Regenerable cache
	State  string // Runtime state (logs, temp)
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
)

// ResolveDirs returns platform-appropriate directories.
// Results are cached after first call.
func ResolveDirs() *Dirs {
	globalDirsOnce.Do(func() {
		globalDirs = resolveDirsImpl()
	})
	return globalDirs
}

func resolveDirsImpl() *Dirs {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", filepath.Join(home, ".config", appDir)),
		Data:   resolveDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share", appDir)),
		Cache:  resolveDir("XDG_CACHE_HOME", filepath.Join(home, ".cache", appDir)),
		State:  resolveDir("XDG_STATE_HOME", filepath.Join(home, ".local", "state", appDir)),
	}
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appDir)
	}
	return fallback
}

// ConfigDir joins elements under the config directory.
func (d *Dirs) ConfigDir(elem ...string) string {
	return filepath.Join(append([]string{d.Config}, elem...)...)
}

// DataDir joins elements under the data directory.
func (d *Dirs) DataDir(elem ...string) string {
	return filepath.Join(append([]string{d.Data}, elem...)...)
}

// CacheDir joins elements under the cache directory.
func (d *Dirs) CacheDir(elem ...string) string {
	return filepath.Join(append([]string{d.Cache}, elem...)...)
}

// StateDir joins elements under the state directory.
func (d *Dirs) StateDir(elem ...string) string {
	return filepath.Join(append([]string{d.State}, elem...)...)
}

// EnsureDir creates a directory with the specified permissions if it doesn't exist.
func EnsureDir(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
