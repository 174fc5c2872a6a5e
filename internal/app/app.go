// Package app wires all Sophia subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithConversationStore,
// WithEngine). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/introspect-ai/sophia/internal/api"
	"github.com/introspect-ai/sophia/internal/config"
	"github.com/introspect-ai/sophia/internal/conversation"
	"github.com/introspect-ai/sophia/internal/health"
	"github.com/introspect-ai/sophia/internal/store"
	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

// shutdownTimeout bounds the in-flight request drain during Run's teardown.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	provider llm.Provider

	// Subsystems. Initialised in New, torn down in Shutdown.
	store    *store.Store
	convStor conversation.Store
	engine   conversation.Engine
	manager  *conversation.Manager
	server   *api.Server
	watcher  *config.Watcher

	// logLevel, when set, lets the config watcher adjust verbosity at
	// runtime.
	logLevel *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConversationStore injects a store instead of connecting to PostgreSQL.
func WithConversationStore(s conversation.Store) Option {
	return func(a *App) { a.convStor = s }
}

// WithEngine injects a conversation engine instead of building one around the
// LLM provider.
func WithEngine(e conversation.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithLogLevelVar connects the logger's level variable so config reloads can
// change verbosity without a restart.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The provider comes
// from main.go (constructed via the config registry).
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		provider: provider,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initConversations()
	a.initServer()

	return a, nil
}

// initStore connects to PostgreSQL and runs the idempotent schema migration,
// unless a store was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.convStor != nil {
		return nil
	}

	st, err := store.New(ctx, a.cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = st
	a.convStor = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	return nil
}

// initConversations builds the engine and the manager around it.
func (a *App) initConversations() {
	if a.engine == nil {
		a.engine = conversation.NewLLMEngine(a.provider, conversation.EngineConfig{
			Temperature: a.cfg.Engine.Temperature,
			MaxTokens:   a.cfg.Engine.MaxTokens,
		})
	}

	mc := conversation.ManagerConfig{
		Store:               a.convStor,
		Engine:              a.engine,
		Registry:            conversation.NewRegistry(),
		HistoryBudgetTokens: a.cfg.Engine.HistoryBudgetTokens,
	}
	if eng, ok := a.engine.(*conversation.LLMEngine); ok {
		mc.TokenCounter = eng
	}
	a.manager = conversation.NewManager(mc)
}

// initServer assembles the HTTP surface with health, metrics, CORS, and
// static hosting.
func (a *App) initServer() {
	checkers := []health.Checker{}
	if a.store != nil {
		checkers = append(checkers, health.Database(a.store))
	}
	if a.provider != nil {
		checkers = append(checkers, health.Provider(a.cfg.Provider.Name, a.provider))
	}

	serverOpts := []api.ServerOption{
		api.WithHealth(health.New(checkers...)),
		api.WithMetricsEndpoint(),
		api.WithFrontend(a.cfg.Frontend.Dir),
		api.WithAllowedOrigin(a.cfg.Frontend.AllowedOrigin),
	}
	if a.cfg.Server.TLS != nil {
		serverOpts = append(serverOpts, api.WithTLS(a.cfg.Server.TLS))
	}

	a.server = api.NewServer(a.manager, serverOpts...)
}

// Manager exposes the conversation surface, mainly for tests.
func (a *App) Manager() *conversation.Manager {
	return a.manager
}

// Handler returns the fully assembled HTTP handler, for use with httptest.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// WatchConfig starts a config file watcher. Log level and engine tuning are
// applied live; changes to the provider, database, listen address, or TLS
// are logged as requiring a restart.
func (a *App) WatchConfig(path string) error {
	w, err := config.NewWatcher(path, a.applyConfig)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// applyConfig is the watcher callback: it applies hot-reloadable changes.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.EngineChanged {
		if eng, ok := a.engine.(*conversation.LLMEngine); ok {
			eng.SetTuning(conversation.EngineConfig{
				Temperature: d.NewEngine.Temperature,
				MaxTokens:   d.NewEngine.MaxTokens,
			})
		}
		a.manager.SetHistoryBudget(d.NewEngine.HistoryBudgetTokens)
		slog.Info("engine tuning changed",
			"temperature", d.NewEngine.Temperature,
			"max_tokens", d.NewEngine.MaxTokens,
			"history_budget_tokens", d.NewEngine.HistoryBudgetTokens,
		)
	}

	if d.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.server.ListenAndServe(a.cfg.Server.ListenAddr)
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, c := range a.closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
