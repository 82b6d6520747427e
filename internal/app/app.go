// Package app wires all SumireVox subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens storage, builds the
// dictionary reconciler and settings store and connects to Discord, Run
// serves the admin API and the gateway until the context ends, and Shutdown
// releases everything in reverse order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithDictionaryClient, WithReading). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sumirevox/internal/config"
	"github.com/MrWong99/sumirevox/internal/dictionary"
	"github.com/MrWong99/sumirevox/internal/discord"
	"github.com/MrWong99/sumirevox/internal/discord/commands"
	"github.com/MrWong99/sumirevox/internal/health"
	"github.com/MrWong99/sumirevox/internal/keylock"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/reading"
	"github.com/MrWong99/sumirevox/internal/resilience"
	"github.com/MrWong99/sumirevox/internal/settings"
	"github.com/MrWong99/sumirevox/internal/storage/postgres"
	"github.com/MrWong99/sumirevox/internal/storage/sqlite"
	"github.com/MrWong99/sumirevox/internal/web"
	"github.com/MrWong99/sumirevox/pkg/voicevox"
)

// ShutdownTimeout bounds the graceful stop of the HTTP server once Run's
// context ends.
const ShutdownTimeout = 10 * time.Second

// Backend is a settings backend the readiness probe can ping. Both storage
// drivers satisfy it.
type Backend interface {
	settings.Backend
	health.Pinger
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Suggester proposes readings for words.
type Suggester interface {
	Suggest(text string) reading.Suggestion
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	backend    Backend
	store      *settings.Store
	engine     dictionary.Client
	version    func(ctx context.Context) (string, error)
	breaker    *resilience.CircuitBreaker
	reconciler *dictionary.Reconciler
	reading    Suggester
	locks      keylock.Map[int64]
	server     *http.Server
	bot        *discord.Bot

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a settings backend instead of opening the configured
// storage driver. The caller keeps ownership and closes it.
func WithBackend(b Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithDictionaryClient injects the remote dictionary instead of connecting to
// the configured VOICEVOX engine. The readiness probe then skips the engine.
func WithDictionaryClient(c dictionary.Client) Option {
	return func(a *App) { a.engine = c }
}

// WithReading injects a reading suggester instead of loading the IPA
// dictionary.
func WithReading(s Suggester) Option {
	return func(a *App) { a.reading = s }
}

// WithMetrics overrides the metrics instance passed to every subsystem.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. On error every
// resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	a.store = settings.NewStore(a.backend, settings.WithMetrics(a.metrics))

	// ── 2. Remote dictionary ─────────────────────────────────────────────
	if err := a.initDictionary(); err != nil {
		return nil, fmt.Errorf("app: init dictionary: %w", err)
	}

	// ── 3. Reading suggestions ───────────────────────────────────────────
	if a.reading == nil {
		s, err := reading.New()
		if err != nil {
			return nil, fmt.Errorf("app: init reading: %w", err)
		}
		a.reading = s
	}

	// ── 4. Discord ───────────────────────────────────────────────────────
	if cfg.Discord.Token != "" {
		if err := a.initDiscord(ctx); err != nil {
			return nil, fmt.Errorf("app: init discord: %w", err)
		}
	}

	// ── 5. Admin HTTP server ─────────────────────────────────────────────
	if cfg.Server.HTTPEnabled() {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.buildHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// initStorage opens the configured storage driver unless a backend was
// injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.backend != nil {
		return nil
	}

	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.backend = s
		a.closers = append(a.closers, s.Close)
		slog.Info("storage opened", "driver", "sqlite", "path", a.cfg.Storage.SQLitePath)
	default:
		s, err := postgres.New(ctx, a.cfg.Storage.DSN())
		if err != nil {
			return err
		}
		a.backend = s
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
		slog.Info("storage opened", "driver", "postgres")
	}
	return nil
}

// initDictionary builds the reconciler on top of the VOICEVOX engine, guarded
// by a circuit breaker.
func (a *App) initDictionary() error {
	if a.engine == nil {
		vv, err := voicevox.New(a.cfg.Voicevox.URL,
			voicevox.WithTimeout(a.cfg.Voicevox.Timeout),
			voicevox.WithAccentType(a.cfg.Voicevox.AccentType),
			voicevox.WithObserver(a.metrics.RecordVoicevoxRequest),
		)
		if err != nil {
			return err
		}
		a.engine = dictionary.FromVoicevox(vv)
		a.version = vv.Version
	}

	a.breaker = dictionary.NewEngineBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	})
	a.reconciler = dictionary.NewReconciler(
		dictionary.WithBreaker(a.engine, a.breaker),
		dictionary.WithMetrics(a.metrics),
	)
	return nil
}

// initDiscord connects the bot and registers the slash commands.
func (a *App) initDiscord(ctx context.Context) error {
	bot, err := discord.New(ctx, discord.Config{
		Token:        a.cfg.Discord.Token,
		GuildID:      a.cfg.Discord.GuildID,
		AdminRoleIDs: a.cfg.Discord.AdminRoleIDs,
	})
	if err != nil {
		return err
	}
	a.bot = bot
	a.closers = append(a.closers, bot.Close)

	perms := bot.Permissions()
	router := bot.Router()
	commands.NewConfigCommands(perms, a.store, &a.locks, bot.InstanceID).Register(router)
	commands.NewDictCommands(perms, a.store, a.reading).Register(router)
	commands.NewVoiceCommands(a.store).Register(router)

	slog.Info("discord connected", "instance_id", bot.InstanceID(), "guild_id", a.cfg.Discord.GuildID)
	return nil
}

// buildHandler assembles the admin API with health and metrics endpoints.
func (a *App) buildHandler() http.Handler {
	checks := []health.Checker{health.Ping("storage", a.backend)}
	if a.version != nil {
		checks = append(checks, health.Versioned("voicevox", a.version))
	}

	opts := []web.Option{
		web.WithDictionary(a.reconciler),
		web.WithSettings(a.store),
		web.WithReading(a.reading),
		web.WithGuildLocks(&a.locks),
		web.WithHealth(health.New(checks...)),
		web.WithMetricsHandler(observe.MetricsHandler()),
		web.WithMetrics(a.metrics),
	}
	if a.cfg.Admin.Enabled() {
		opts = append(opts, web.WithBasicAuth(a.cfg.Admin.User, a.cfg.Admin.Password))
	}
	if len(a.cfg.Admin.CORSOrigins) > 0 {
		opts = append(opts, web.WithCORS(a.cfg.Admin.CORSOrigins))
	}
	return web.New(opts...).Handler()
}

// Handler returns the admin HTTP handler, or nil when the HTTP server is
// disabled.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server.Handler
}

// Store returns the settings store.
func (a *App) Store() *settings.Store {
	return a.store
}

// Run serves the admin API and the Discord gateway and blocks until ctx is
// cancelled or one of them fails. A cancelled ctx is a clean stop and
// returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			slog.Info("admin http listening", "addr", a.server.Addr, "api", a.cfg.Admin.Enabled())
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(sctx); err != nil {
				return fmt.Errorf("app: http shutdown: %w", err)
			}
			return nil
		})
	}

	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	slog.Info("app running", "http", a.server != nil, "discord", a.bot != nil)
	return g.Wait()
}

// Shutdown releases every subsystem in reverse opening order, so the bot
// stops before the storage it writes to. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
