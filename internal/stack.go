package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/feinschmecker/internal/coord"
	"github.com/starford/feinschmecker/internal/graphcache"
	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/natsutil"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
	"github.com/starford/feinschmecker/internal/retry"
	"github.com/starford/feinschmecker/internal/tasks"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	return app, nil
}

// newLogger installs the structured JSON logger as the default.
func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// stack holds the components every command shares: metrics, the
// coordination store, the graph cache and any NATS connections.
type stack struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	coord   *coord.Coordinator
	graph   *graphcache.Cache

	conns   map[string]*natsutil.Conn
	closers []io.Closer
}

func openStack(ctx context.Context, cfg *Config, logger *slog.Logger) (*stack, error) {
	s := &stack{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		conns:   map[string]*natsutil.Conn{},
	}
	if err := s.openCoord(ctx); err != nil {
		s.Close()
		return nil, err
	}

	load := retry.DefaultConfig()
	load.MaxAttempts = cfg.Graph.LoadRetries + 1
	s.graph = graphcache.New(graphcache.Config{
		Location:        cfg.Graph.Location,
		CacheDir:        cfg.Graph.CacheDir,
		WaitTimeout:     cfg.Graph.WaitTimeout,
		WaitPoll:        cfg.Graph.WaitPoll,
		Load:            load,
		CreateIfMissing: cfg.Graph.CreateIfMissing,
	}, s.coord, graphcache.WithMetrics(s.metrics), graphcache.WithLogger(logger))
	s.closers = append(s.closers, s.graph)
	return s, nil
}

// nats returns the connection to url, dialing it on first use. The
// coordination store and the task queue share a connection when their
// URLs match.
func (s *stack) nats(ctx context.Context, url string) (*natsutil.Conn, error) {
	if c, ok := s.conns[url]; ok {
		return c, nil
	}
	c, err := natsutil.Connect(ctx, url, "feinschmecker")
	if err != nil {
		return nil, err
	}
	s.conns[url] = c
	s.logger.Info("nats: connected", slog.String("url", url))
	return c, nil
}

func (s *stack) openCoord(ctx context.Context) error {
	cc := s.cfg.Coord
	var store coord.Store
	switch cc.Backend {
	case CoordMemory:
		store = coord.NewMemoryStore()
	case CoordSQLite:
		if err := os.MkdirAll(filepath.Dir(cc.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create coord dir: %w", err)
		}
		st, err := coord.OpenSQLite(cc.SQLitePath)
		if err != nil {
			return fmt.Errorf("init coord: %w", err)
		}
		store = st
	case CoordNATS:
		conn, err := s.nats(ctx, cc.NATSURL)
		if err != nil {
			return fmt.Errorf("init coord: %w", err)
		}
		st, err := coord.NewNATSStore(ctx, conn.JS, cc.Bucket)
		if err != nil {
			return fmt.Errorf("init coord: %w", err)
		}
		store = st
	default:
		return fmt.Errorf("unknown coord backend %q", cc.Backend)
	}
	s.coord = coord.New(store, cc.Prefix, coord.WithLogger(s.logger))
	s.closers = append(s.closers, s.coord)
	s.logger.Info("coord: store opened", slog.String("backend", cc.Backend))
	return nil
}

// openTasks opens the configured queue and result backend.
func (s *stack) openTasks(ctx context.Context) (tasks.Queue, tasks.Backend, error) {
	tc := s.cfg.Tasks
	switch tc.Backend {
	case TasksLocal:
		backend, err := tasks.OpenBadger(tc.ResultDir, tc.ResultTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("init task results: %w", err)
		}
		queue := tasks.NewLocalQueue(tc.Workers, tc.QueueSize)
		s.closers = append(s.closers, backend, queue)
		return queue, backend, nil
	case TasksNATS:
		conn, err := s.nats(ctx, tc.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init tasks: %w", err)
		}
		backend, err := tasks.NewNATSBackend(ctx, conn.JS, tc.ResultsBucket, tc.ResultTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("init task results: %w", err)
		}
		queue, err := tasks.NewNATSQueue(ctx, conn.JS, tasks.NATSQueueConfig{
			Stream:  tc.Stream,
			Subject: tc.Subject,
			Durable: tc.Durable,
			Workers: tc.Workers,
			AckWait: tc.Limits().Budget(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init task queue: %w", err)
		}
		s.closers = append(s.closers, backend, queue)
		return queue, backend, nil
	}
	return nil, nil, fmt.Errorf("unknown tasks backend %q", tc.Backend)
}

// engine creates a mutation engine over the graph cache that publishes
// every write through the coordination store.
func (s *stack) engine(opts ...mutation.Option) *mutation.Engine {
	base := []mutation.Option{
		mutation.WithPublisher(s.graph),
		mutation.WithPlaceholders(s.cfg.Graph.Placeholders),
		mutation.WithMetrics(s.metrics),
		mutation.WithLogger(s.logger),
	}
	return mutation.NewEngine(s.graph, append(base, opts...)...)
}

func (s *stack) recipes() *recipes.Service {
	return recipes.NewService(s.graph, s.metrics, s.logger)
}

// worker creates a task worker with the recipe handlers registered.
func (s *stack) worker(backend tasks.Backend, svc *recipes.Service, eng *mutation.Engine) *tasks.Worker {
	w := tasks.NewWorker(backend, s.cfg.Tasks.Limits(),
		tasks.WithWorkerMetrics(s.metrics),
		tasks.WithWorkerLogger(s.logger))
	tasks.RegisterRecipeHandlers(w, svc, eng)
	return w
}

func (s *stack) pageLimits() query.PageLimits {
	return query.PageLimits{
		Default: s.cfg.Pagination.DefaultPerPage,
		Max:     s.cfg.Pagination.MaxPerPage,
	}
}

// version is the shared graph version, or the locally loaded one when the
// coordination store cannot be read.
func (s *stack) version(ctx context.Context) int64 {
	st, err := s.coord.Current(ctx)
	if err == nil {
		return st.Version
	}
	_, v, _ := s.graph.Loaded()
	return v
}

func (s *stack) ready() bool {
	_, _, ok := s.graph.Loaded()
	return ok
}

// watchable reports whether the graph location is a local file.
func (s *stack) watchable() bool {
	loc := s.cfg.Graph.Location
	return !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://")
}

// Close closes components in reverse order of opening, then the NATS
// connections.
func (s *stack) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range s.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("shutdown: close failed", slog.String("error", err.Error()))
	}
}
