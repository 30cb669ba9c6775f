package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/folioforge/concierge/agents/navigator"
	"github.com/folioforge/concierge/agents/planner"
	"github.com/folioforge/concierge/agents/profile"
	"github.com/folioforge/concierge/agents/projects"
	"github.com/folioforge/concierge/agents/support"
	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/collab"
	"github.com/folioforge/concierge/core/config"
	"github.com/folioforge/concierge/core/docs"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/orchestrator"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/server"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/storage"
	"github.com/folioforge/concierge/core/tools"
)

var serveLogLevel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := newLogger(serveLogLevel)

	dirs := storage.ResolveDirs()
	for _, dir := range []string{dirs.Config, dirs.Data} {
		if err := storage.EnsureDir(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	manager := config.NewManager(dirs)
	if err := manager.Load(); err != nil {
		return err
	}
	cfg := manager.Get()

	cfgWatcher, err := config.NewWatcher(manager, logger)
	if err != nil {
		logger.Warn("config watch unavailable", "error", err)
	} else {
		defer cfgWatcher.Close()
	}

	store, err := state.NewSQLiteStore(state.SQLiteConfig{
		Path:    cfg.State.Path,
		MaxCost: int64(cfg.State.HotCacheMaxMB) << 20,
	})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	index, err := openDocsIndex(cfg, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	if cfg.Docs.Watch && cfg.Docs.SourceDir != "" {
		docsWatcher, err := docs.NewWatcher(index, logger)
		if err != nil {
			logger.Warn("docs watch unavailable", "error", err)
		} else {
			defer docsWatcher.Close()
		}
	}

	services := buildCollabServices(cfg, logger)
	catalog := tools.NewCatalog(services, index)

	providerRegistry, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	defer providerRegistry.Close()

	provider, err := providerRegistry.Default()
	if err != nil {
		return fmt.Errorf("no usable model provider: %w", err)
	}
	logger.Info("model provider ready", "provider", provider.Name())

	router, err := buildRouter(cfg, provider, logger)
	if err != nil {
		return err
	}

	agentRegistry := agent.NewAgentRegistry(
		support.New(),
		profile.New(),
		projects.New(),
		navigator.New(),
	)
	agentRegistry.Register(planner.New(agentRegistry))

	orch := orchestrator.New(orchestrator.Config{
		TurnBudget:     cfg.Turn.Budget,
		MaxToolRounds:  cfg.Turn.MaxToolRounds,
		MaxAgentSteps:  cfg.Turn.MaxAgentSteps,
		HistoryEntries: cfg.State.HistoryEntries,
	}, store, router, agentRegistry, catalog, provider, logger)

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orch, logger)

	// Serve until interrupted, then drain.
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		return srv.Shutdown(context.Background())
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func openDocsIndex(cfg *config.Config, logger *slog.Logger) (*docs.Index, error) {
	index := docs.NewIndex(docs.IndexConfig{
		Path:      cfg.Docs.IndexPath,
		SourceDir: cfg.Docs.SourceDir,
	})
	if err := index.Open(); err != nil {
		return nil, fmt.Errorf("open docs index: %w", err)
	}

	if cfg.Docs.SourceDir != "" {
		count, err := index.IndexDir(context.Background())
		if err != nil {
			logger.Warn("docs indexing incomplete", "error", err)
		} else {
			logger.Info("docs indexed", "count", count, "dir", filepath.Clean(cfg.Docs.SourceDir))
		}
	}
	return index, nil
}

// buildCollabServices wires the platform backends, falling back to the
// in-process implementation when no base URLs are configured so the
// service can run standalone in development.
func buildCollabServices(cfg *config.Config, logger *slog.Logger) collab.Services {
	if cfg.Collab.ProfileBaseURL == "" {
		logger.Warn("no collaborator base URLs configured, using in-memory backends")
		return collab.NewMemoryServices().Bundle()
	}

	httpCfg := collab.HTTPConfig{
		ProfileBaseURL: cfg.Collab.ProfileBaseURL,
		ProjectBaseURL: cfg.Collab.ProjectBaseURL,
		TicketBaseURL:  cfg.Collab.TicketBaseURL,
		APIKey:         os.Getenv("CONCIERGE_COLLAB_API_KEY"),
		Timeout:        cfg.Collab.Timeout,
	}
	return collab.Services{
		Profiles: collab.NewHTTPProfileService(httpCfg),
		Projects: collab.NewHTTPProjectService(httpCfg),
		Tickets:  collab.NewHTTPTicketService(httpCfg),
	}
}

func buildProviders(cfg *config.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry(cfg.LLM.DefaultProvider)

	if cfg.Anthropic.APIKey != "" {
		p, err := providers.NewAnthropicProvider(providerConfig(cfg.Anthropic))
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		registry.Register(p)
	}
	if cfg.OpenAI.APIKey != "" {
		p, err := providers.NewOpenAIProvider(providerConfig(cfg.OpenAI))
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		registry.Register(p)
	}
	return registry, nil
}

func providerConfig(pc config.ProviderConfig) providers.Config {
	out := providers.DefaultConfig()
	out.APIKey = pc.APIKey
	if pc.Model != "" {
		out.Model = pc.Model
	}
	out.BaseURL = pc.BaseURL
	if pc.MaxTokens > 0 {
		out.MaxTokens = pc.MaxTokens
	}
	if pc.Temperature > 0 {
		out.Temperature = pc.Temperature
	}
	if pc.Timeout > 0 {
		out.Timeout = pc.Timeout
	}
	return out
}

func buildRouter(cfg *config.Config, provider providers.Provider, logger *slog.Logger) (*intent.Router, error) {
	stages := []intent.Stage{
		intent.NewLexicalStage(intent.DefaultKeywords()),
		intent.NewContextStage(),
	}
	if cfg.Routing.LLMFallback {
		stages = append(stages, intent.NewLLMStage(provider, ""))
	}

	return intent.NewRouter(intent.RouterConfig{
		SingleAgentThreshold: cfg.Routing.SingleDomainThreshold,
		CrossAgentThreshold:  cfg.Routing.CrossDomainThreshold,
		CacheSize:            cfg.Routing.CacheSize,
	}, logger, stages...)
}
