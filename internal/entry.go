// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/feinschmecker/internal/api"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/respcache"
	"github.com/starford/feinschmecker/internal/sse"
	"github.com/starford/feinschmecker/internal/tasks"
)

// Run starts the HTTP server with the given options. With the local task
// backend the task workers run in this process as well.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("graph_location", cfg.Graph.Location),
		slog.String("coord_backend", cfg.Coord.Backend),
		slog.String("tasks_backend", cfg.Tasks.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	s, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	// A missing graph is not fatal: the server starts degraded and every
	// task retries the load through the cache.
	if _, err := s.graph.PublishSource(ctx); err != nil {
		logger.Warn("graph: source not loaded, serving degraded", slog.String("error", err.Error()))
	}

	cache, err := respcache.New(respcache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, s.metrics)
	if err != nil {
		return fmt.Errorf("init response cache: %w", err)
	}
	defer cache.Close()

	broker := sse.NewBroker(cfg.SSE.GraphThrottle)
	defer broker.Close()

	eng := s.engine(
		mutation.WithHook(broker.Hook()),
		mutation.WithHook(func(context.Context, mutation.Change) { cache.Clear() }),
	)
	svc := s.recipes()

	queue, backend, err := s.openTasks(ctx)
	if err != nil {
		return err
	}
	dispatcher := tasks.NewDispatcher(queue, backend, tasks.WithDispatcherLogger(logger))

	deps := api.Deps{
		Recipes:     svc,
		Engine:      eng,
		Dispatcher:  dispatcher,
		Cache:       cache,
		Version:     s.version,
		Limits:      s.pageLimits(),
		AuthEnabled: cfg.Auth.AuthEnabled(),
		AuthToken:   cfg.Auth.Token,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		Events:      broker,
		Ready:       s.ready,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = s.metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", api.NewRouter(deps))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Tasks.Backend == TasksLocal {
		worker := s.worker(backend, svc, eng)
		g.Go(func() error {
			return worker.Run(gCtx, queue)
		})
	}

	if cfg.Graph.Watch && s.watchable() {
		g.Go(func() error {
			err := s.graph.Watch(gCtx, cfg.Graph.Location, broker.PublishGraphFile)
			if err != nil {
				logger.Warn("watcher: not started", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		waitForShutdown(gCtx, logger)
		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunWorker consumes tasks from the shared NATS queue until a shutdown
// signal arrives. Each task reloads the graph when the shared version moved.
func RunWorker(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if cfg.Tasks.Backend != TasksNATS {
		return fmt.Errorf("worker requires tasks.backend %q; local tasks run inside serve", TasksNATS)
	}
	logger := app.newLogger()

	s, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	queue, backend, err := s.openTasks(ctx)
	if err != nil {
		return err
	}
	worker := s.worker(backend, s.recipes(), s.engine())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gCtx, queue)
	})
	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Worker stopped successfully")
	return nil
}

// waitForShutdown blocks until SIGINT, SIGTERM or ctx is done.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
