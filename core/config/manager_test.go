package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioforge/concierge/core/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	base := t.TempDir()
	dirs := &storage.Dirs{
		Config: filepath.Join(base, "config"),
		Data:   filepath.Join(base, "data"),
		Cache:  filepath.Join(base, "cache"),
		State:  filepath.Join(base, "state"),
	}
	require.NoError(t, storage.EnsureDir(dirs.Config, 0o755))
	require.NoError(t, storage.EnsureDir(dirs.Data, 0o755))
	return NewManager(dirs)
}

func writeConfig(t *testing.T, m *Manager, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(m.Path(), []byte(content), 0o644))
}

func TestManager_DefaultsWithoutFile(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, ":8087", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, 90*time.Second, cfg.Turn.Budget)
	assert.Equal(t, 0.75, cfg.Routing.SingleDomainThreshold)
	assert.True(t, cfg.Routing.LLMFallback)
}

func TestManager_FileOverridesDefaults(t *testing.T) {
	m := newTestManager(t)
	writeConfig(t, m, `
server:
  addr: ":9000"
turn:
  budget: 30s
routing:
  llm_fallback: false
`)

	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Turn.Budget)
	assert.False(t, cfg.Routing.LLMFallback)
	// Untouched sections keep defaults.
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
}

func TestManager_EnvironmentWinsOverFile(t *testing.T) {
	m := newTestManager(t)
	writeConfig(t, m, "server:\n  addr: \":9000\"\n")
	t.Setenv("CONCIERGE_ADDR", ":7777")
	t.Setenv("CONCIERGE_TURN_BUDGET", "45s")

	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.Turn.Budget)
}

func TestManager_DerivedPaths(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, filepath.Base(cfg.State.Path), "conversations.db")
	assert.Equal(t, filepath.Base(cfg.Docs.IndexPath), "docs.bleve")

	t.Setenv("CONCIERGE_STATE_PATH", "/tmp/custom.db")
	require.NoError(t, m.Reload())
	assert.Equal(t, "/tmp/custom.db", m.Get().State.Path)
}

func TestManager_MalformedFileFailsLoad(t *testing.T) {
	m := newTestManager(t)
	writeConfig(t, m, "server: [not a map")

	err := m.Load()

	require.Error(t, err)
	// The previous snapshot stays active.
	assert.Equal(t, ":8087", m.Get().Server.Addr)
}

func TestManager_OnChangeNotified(t *testing.T) {
	m := newTestManager(t)

	var got *Config
	m.OnChange(func(cfg *Config) { got = cfg })

	require.NoError(t, m.Load())

	require.NotNil(t, got)
	assert.Same(t, m.Get(), got)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Load())

	w, err := NewWatcher(m, testLogger())
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, m, "server:\n  addr: \":9100\"\n")

	deadline := time.After(3 * time.Second)
	for m.Get().Server.Addr != ":9100" {
		select {
		case <-deadline:
			t.Fatalf("config not reloaded; addr = %q", m.Get().Server.Addr)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
