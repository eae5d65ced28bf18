package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/admin/internal/cli/config"
	"github.com/conduit-lang/admin/internal/orm/crud"
	"github.com/conduit-lang/admin/internal/orm/introspect"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
	"github.com/conduit-lang/admin/internal/store/memory"
	"github.com/conduit-lang/admin/internal/store/sqlstore"
	"github.com/conduit-lang/admin/internal/web/admin"
	"github.com/conduit-lang/admin/internal/web/auth"
	"github.com/conduit-lang/admin/internal/web/middleware"
)

// App is the wired admin engine built from a configuration
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *schema.Registry
	Store    store.Store
	Executor *crud.Executor
	Auth     *auth.AuthService

	close func() error
}

// NewLogger builds the zap logger described by cfg
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Bootstrap builds the registry from the configured entities, opens the
// store and wires the executor. A schema error is returned unwrapped so the
// caller can report it and exit.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	reg, err := introspect.New(introspect.Options{Logger: logger, Once: true}).
		Bootstrap(ctx, introspect.Descriptors(cfg.Entities))
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, Registry: reg, close: func() error { return nil }}

	if cfg.Database.Driver == config.MemoryDriver {
		app.Store = memory.New()
	} else {
		sq, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL, sqlstore.Options{
			Logger:      logger.Named("sql"),
			Transaction: cfg.TransactionOptions(),
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := sq.Migrate(ctx, reg); err != nil {
				sq.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		app.Store, app.close = sq, sq.Close
	}

	opts := crud.Options{
		Builder: query.NewBuilder(query.Options{
			DefaultLimit: cfg.Admin.PageSize,
			MaxLimit:     cfg.Admin.MaxPageSize,
		}),
		Logger:        logger.Named("crud"),
		BatchSize:     cfg.Admin.BatchSize,
		MaxBinarySize: int64(cfg.Admin.MaxFileSizeMB) << 20,
	}
	// Without a secret there are no principals, so a role gate would refuse
	// every request.
	if cfg.Auth.Secret != "" {
		app.Auth = auth.NewAuthService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		opts.Gate = auth.RoleGate(cfg.Admin.RequiredRole)
	}
	app.Executor = crud.New(reg, app.Store, opts)

	logger.Info("admin engine ready",
		zap.Int("entities", reg.Count()),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("auth", app.Auth != nil))
	return app, nil
}

// AdminHandler builds the admin API handler
func (a *App) AdminHandler() *admin.Handler {
	opts := admin.Options{Title: a.Config.Admin.AppTitle, Logger: a.Logger.Named("admin")}
	if a.Auth != nil {
		opts.Middleware = []middleware.Middleware{middleware.Auth(a.Auth)}
	}
	return admin.New(a.Executor, opts)
}

// Handler returns the root HTTP handler: a health check plus the admin API
// mounted at its base path when enabled
func (a *App) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if a.Config.Admin.Enabled {
		mux.Mount(a.Config.Admin.BasePath, a.AdminHandler())
	}
	return mux
}

// Close releases the store
func (a *App) Close() error {
	return a.close()
}
