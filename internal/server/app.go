// Package server initializes and runs the application: it opens the selected
// storage backend, applies migrations, wires the services and the HTTP
// transport, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/handlers"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler http.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	minter, err := auth.NewMinter([]byte(cfg.SigningKey), cfg.Issuer, cfg.Audience,
		cfg.AccessTokenLifetime, timex.SystemClock{})
	if err != nil {
		return nil, fmt.Errorf("minter init error: %w", err)
	}

	db, repos, runner, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := repos.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("migrations error: %w", err)
		}
	}

	tokens := services.NewTokenService(repos, minter, timex.SystemClock{}, cfg.RefreshTokenLifetime, logger)
	authSvc := services.NewAuthService(runner, repos, tokens, password.NewBcryptHasher(0), logger)
	handler := handlers.NewAuthHandler(authSvc, minter, logger).Router()

	return &App{config: cfg, logger: logger, db: db, handler: handler}, nil
}

// openBackend builds the repository manager and unit-of-work runner for the
// configured storage backend. The returned *sql.DB is nil for the pure
// in-memory backend.
func openBackend(cfg *config.Config) (*sql.DB, repomanager.RepositoryManager, dbx.Runner, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db init error: %w", err)
		}
		return db, repomanager.NewPostgresRepositoryManager(), dbx.NewSQLRunner(db), nil

	case config.BackendRedis:
		// Users still live in PostgreSQL, so units of work need a real
		// transactional handle; the redis token repository ignores it.
		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db init error: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return db, repomanager.NewRedisRepositoryManager(client), dbx.NewSQLRunner(db), nil

	case config.BackendMemory:
		return nil, repomanager.NewInMemoryRepositoryManager(), dbx.PassthroughRunner{}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "server shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "backend", app.config.StoreBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
}
