package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/folioforge/concierge/core/storage"
	"gopkg.in/yaml.v3"
)

// Manager holds the active configuration behind an atomic pointer.
// Readers get a consistent snapshot; Load/Reload swap the whole config.
type Manager struct {
	configPtr unsafe.Pointer
	dirs      *storage.Dirs
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
}

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	LLM       LLMConfig      `yaml:"llm"`
	Turn      TurnConfig     `yaml:"turn"`
	State     StateConfig    `yaml:"state"`
	Docs      DocsConfig     `yaml:"docs"`
	Collab    CollabConfig   `yaml:"collaborators"`
	Routing   RoutingConfig  `yaml:"routing"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

type TurnConfig struct {
	Budget        time.Duration `yaml:"budget"`
	MaxAgentSteps int           `yaml:"max_agent_steps"`
	MaxToolRounds int           `yaml:"max_tool_rounds"`
}

type StateConfig struct {
	Path           string `yaml:"path"`
	HotCacheMaxMB  int    `yaml:"hot_cache_max_mb"`
	HistoryEntries int    `yaml:"history_entries"`
}

type DocsConfig struct {
	SourceDir string `yaml:"source_dir"`
	IndexPath string `yaml:"index_path"`
	Watch     bool   `yaml:"watch"`
}

type CollabConfig struct {
	ProfileBaseURL string        `yaml:"profile_base_url"`
	ProjectBaseURL string        `yaml:"project_base_url"`
	TicketBaseURL  string        `yaml:"ticket_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

type RoutingConfig struct {
	SingleDomainThreshold float64 `yaml:"single_domain_threshold"`
	CrossDomainThreshold  float64 `yaml:"cross_domain_threshold"`
	CacheSize             int     `yaml:"cache_size"`
	LLMFallback           bool    `yaml:"llm_fallback"`
}

type ProviderConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

func NewManager(dirs *storage.Dirs) *Manager {
	m := &Manager{
		dirs: dirs,
		path: dirs.ConfigDir("config.yaml"),
	}
	cfg := DefaultConfig()
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8087",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			Timeout:         2 * time.Minute,
			MaxRetries:      3,
		},
		Turn: TurnConfig{
			Budget:        90 * time.Second,
			MaxAgentSteps: 6,
			MaxToolRounds: 8,
		},
		State: StateConfig{
			HotCacheMaxMB:  64,
			HistoryEntries: 20,
		},
		Docs: DocsConfig{
			Watch: true,
		},
		Collab: CollabConfig{
			Timeout: 15 * time.Second,
		},
		Routing: RoutingConfig{
			SingleDomainThreshold: 0.75,
			CrossDomainThreshold:  0.65,
			CacheSize:             512,
			LLMFallback:           true,
		},
		Anthropic: ProviderConfig{
			Model:       "claude-haiku-4-5-20251001",
			MaxTokens:   2048,
			Temperature: 0,
		},
		OpenAI: ProviderConfig{
			Model:     "gpt-5.2-codex",
			MaxTokens: 2048,
		},
	}
}

// Get returns the active configuration snapshot.
func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Path returns the config file path the manager loads from.
func (m *Manager) Path() string {
	return m.path
}

// Load reads defaults, then the config file, then environment overrides,
// and atomically swaps the active config.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	m.applyEnvironment(cfg)
	m.applyDerivedDefaults(cfg)

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)

	return nil
}

// Reload re-runs Load; used by the file watcher.
func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) applyDerivedDefaults(cfg *Config) {
	if cfg.State.Path == "" {
		cfg.State.Path = m.dirs.DataDir("conversations.db")
	}
	if cfg.Docs.IndexPath == "" {
		cfg.Docs.IndexPath = m.dirs.DataDir("docs.bleve")
	}
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("CONCIERGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CONCIERGE_LLM_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("CONCIERGE_TURN_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Turn.Budget = d
		}
	}
	if v := os.Getenv("CONCIERGE_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("CONCIERGE_DOCS_DIR"); v != "" {
		cfg.Docs.SourceDir = v
	}
	if v := os.Getenv("CONCIERGE_ROUTING_LLM_FALLBACK"); v != "" {
		cfg.Routing.LLMFallback = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("CONCIERGE_ROUTING_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Routing.CacheSize = n
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("CONCIERGE_PROFILE_URL"); v != "" {
		cfg.Collab.ProfileBaseURL = v
	}
	if v := os.Getenv("CONCIERGE_PROJECT_URL"); v != "" {
		cfg.Collab.ProjectBaseURL = v
	}
	if v := os.Getenv("CONCIERGE_TICKET_URL"); v != "" {
		cfg.Collab.TicketBaseURL = v
	}
}

// OnChange registers a callback invoked after every successful (re)load.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}
