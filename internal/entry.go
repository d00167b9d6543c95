package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/migrate"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/storage"
)

// runtime bundles the wired components shared by every entrypoint.
type runtime struct {
	cfg        *Config
	logger     *slog.Logger
	store      storage.Provider
	db         *index.DB
	maintainer *index.Maintainer
	svc        *noteservice.Service
	engine     *search.Engine
	migration  *migrate.Result
}

// setup opens the vault and the database, runs pending migrations, and
// rebuilds the index when the schema was freshly created. Nothing downstream
// is trusted until migration succeeds, so a migration failure aborts
// startup.
func setup(cfg *Config) (*runtime, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	manager := migrate.NewManager(db, store, logger)
	result, err := manager.Run()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Migrations complete",
		slog.String("from", result.FromVersion),
		slog.String("to", result.ToVersion),
		slog.Int("executed", len(result.ExecutedMigrations)))

	if !cfg.Migration.RetainBackups {
		if err := manager.DropBackups(); err != nil {
			logger.Warn("drop migration backups failed", slog.String("error", err.Error()))
		}
	}

	maintainer := index.NewMaintainer(db, store, logger)

	// A freshly created schema has nothing indexed yet; scan the vault.
	if result.RebuiltDatabase {
		if err := maintainer.Rebuild(nil); err != nil {
			logger.Warn("initial rebuild failed", slog.String("error", err.Error()))
		}
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		db:         db,
		maintainer: maintainer,
		svc:        noteservice.NewService(store, db, maintainer),
		engine:     search.NewEngine(db, store, logger),
		migration:  result,
	}, nil
}

// Run starts the HTTP server and vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	rt, err := setup(app.config)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	cfg := rt.cfg
	logger := rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(rt.svc, rt.engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		index.Watch(gCtx, rt.maintainer, cfg.Vault.Path, logger, func(kind, path string) {
			broker.PublishNoteEvent(kind, path)
		})
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Migrate runs pending migrations and prints the result as JSON.
func Migrate(_ context.Context, cfg *Config) error {
	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	out, _ := json.MarshalIndent(rt.migration, "", "  ")
	fmt.Println(string(out))
	return nil
}

// Reindex forces a full rescan of the vault.
func Reindex(_ context.Context, cfg *Config) error {
	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	return rt.maintainer.Rebuild(func(processed, total int) {
		rt.logger.Info("reindex progress", slog.Int("processed", processed), slog.Int("total", total))
	})
}

// Search runs a simple query and prints results as JSON.
func Search(_ context.Context, cfg *Config, query, noteType string, limit int) error {
	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	results, err := rt.engine.Simple(query, noteType, limit)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
	return nil
}

// ServeMCP exposes the tool surface over stdio.
func ServeMCP(_ context.Context, cfg *Config) error {
	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	return mcpserver.New(rt.svc, rt.engine).ServeStdio()
}
