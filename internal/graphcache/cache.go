// Package graphcache holds the graph store loaded by this process and
// reloads it when the shared version pointer moves.
package graphcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/coord"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/retry"
	"github.com/starford/feinschmecker/internal/storage"
)

// Config controls where the graph comes from and how long to wait for it.
type Config struct {
	Location    string        // local path or http(s) URL
	CacheDir    string        // download directory for remote sources
	WaitTimeout time.Duration // how long to wait for the source to appear
	WaitPoll    time.Duration
	Load        retry.Config
	// CreateIfMissing starts an empty graph when a local source does not
	// exist instead of failing.
	CreateIfMissing bool
}

// closeGrace delays closing a replaced store so in-flight queries finish.
const closeGrace = 30 * time.Second

// Cache is the per-process {store, version, location} triple.
type Cache struct {
	cfg     Config
	coord   *coord.Coordinator
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	store    *graph.Store
	version  int64
	location string
	invalid  bool
}

// Option configures a Cache.
type Option func(*Cache)

func WithHTTPClient(c *http.Client) Option  { return func(cc *Cache) { cc.client = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(cc *Cache) { cc.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(cc *Cache) { cc.logger = l } }

// New creates an empty cache. co may be nil, in which case only the
// configured location is used.
func New(cfg Config, co *coord.Coordinator, opts ...Option) *Cache {
	if cfg.WaitPoll <= 0 {
		cfg.WaitPoll = time.Second
	}
	c := &Cache{
		cfg:    cfg,
		coord:  co,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Acquire returns the store for the current shared version, reloading when
// the published version or location differs from the cached one. If the
// reload fails while an older store is loaded, the older store is served.
func (c *Cache) Acquire(ctx context.Context) (*graph.Store, error) {
	var st coord.State
	if c.coord != nil {
		cur, err := c.coord.Current(ctx)
		if err != nil {
			c.logger.Warn("graphcache: coordination read failed", slog.String("error", err.Error()))
			c.mu.Lock()
			store := c.store
			c.mu.Unlock()
			if store != nil {
				return store, nil
			}
		} else {
			st = cur
		}
	}
	loc := st.Location(c.cfg.Location)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil && !c.invalid && !c.store.Stale() && c.version == st.Version && c.location == loc {
		return c.store, nil
	}

	start := time.Now()
	store, err := c.load(ctx, loc)
	c.metrics.Reload(err)
	if err != nil {
		if c.store != nil {
			c.logger.Warn("graphcache: reload failed, serving cached graph",
				slog.String("location", loc),
				slog.Int64("cached_version", c.version),
				slog.String("error", err.Error()))
			return c.store, nil
		}
		return nil, fmt.Errorf("graphcache: %w: %w", apperr.ErrNoStoreLoaded, err)
	}

	c.replace(store)
	c.version = st.Version
	c.location = loc
	c.metrics.SetVersion(st.Version)
	c.logger.Info("graph: loaded",
		slog.String("location", loc),
		slog.Int64("version", st.Version),
		slog.Duration("elapsed", time.Since(start)))
	return store, nil
}

// replace swaps in store. Must hold mu.
func (c *Cache) replace(store *graph.Store) {
	old := c.store
	c.store = store
	c.invalid = false
	if old != nil && old != store {
		time.AfterFunc(closeGrace, func() { old.Close() })
	}
}

// Loaded returns the cached store without checking for a newer version.
func (c *Cache) Loaded() (*graph.Store, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store, c.version, c.store != nil
}

// Invalidate forces a reload on the next Acquire.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.invalid = true
	c.mu.Unlock()
}

// Publish announces a write by this process: it bumps the shared version,
// records the local file, and marks the cached store as current so the
// writer does not reload its own change.
func (c *Cache) Publish(ctx context.Context) (int64, error) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return 0, apperr.ErrNoStoreLoaded
	}
	local := store.Path()

	var version int64
	if c.coord != nil {
		v, err := c.coord.Publish(ctx, local)
		if err != nil {
			return 0, err
		}
		version = v
	}
	c.mark(store, version, local)
	return version, nil
}

// PublishSource loads the configured location and publishes it as the
// authoritative source. Used once at startup by the serving process.
func (c *Cache) PublishSource(ctx context.Context) (int64, error) {
	c.mu.Lock()
	store, err := c.load(ctx, c.cfg.Location)
	c.metrics.Reload(err)
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("graphcache: %w: %w", apperr.ErrNoStoreLoaded, err)
	}
	c.replace(store)
	c.location = c.cfg.Location
	c.mu.Unlock()

	local := store.Path()
	var version int64
	if c.coord != nil {
		v, err := c.coord.PublishSource(ctx, c.cfg.Location, local)
		if err != nil {
			return 0, err
		}
		version = v
	}
	c.mark(store, version, local)
	c.logger.Info("graph: source published",
		slog.String("location", c.cfg.Location),
		slog.Int64("version", version))
	return version, nil
}

func (c *Cache) mark(store *graph.Store, version int64, local string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != store {
		return
	}
	c.version = version
	if local != "" {
		c.location = local
	}
	c.metrics.SetVersion(version)
}

// Close closes the cached store.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// load waits for loc, fetches it when remote, and opens it.
func (c *Cache) load(ctx context.Context, loc string) (*graph.Store, error) {
	if loc == "" {
		return nil, errors.New("no graph location configured")
	}
	local, err := c.resolve(ctx, loc)
	if err != nil {
		if c.cfg.CreateIfMissing && !isRemote(loc) && errors.Is(err, os.ErrNotExist) {
			return c.empty(loc)
		}
		return nil, err
	}
	files, err := storage.NewFS(filepath.Dir(local))
	if err != nil {
		return nil, err
	}
	c.sweep(files, local)
	return retry.DoWithResult(ctx, c.cfg.Load, func() (*graph.Store, error) {
		s, err := graph.Open(ctx, files, filepath.Base(local))
		if err != nil {
			c.logger.Warn("graphcache: load attempt failed",
				slog.String("path", local),
				slog.String("error", err.Error()))
		}
		return s, err
	})
}

func (c *Cache) empty(loc string) (*graph.Store, error) {
	abs, err := filepath.Abs(loc)
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	c.sweep(files, abs)
	c.logger.Info("graphcache: starting empty graph", slog.String("path", abs))
	return graph.New(files, filepath.Base(abs))
}

// staleAfter is how old a temp file of the graph must be before it counts
// as abandoned by a crashed writer.
const staleAfter = 10 * time.Minute

func (c *Cache) sweep(files *storage.FS, path string) {
	n, err := files.RemoveStale(filepath.Base(path), staleAfter)
	if err != nil {
		c.logger.Warn("graphcache: temp sweep failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		c.logger.Info("graphcache: removed stale temp files", slog.String("path", path), slog.Int("count", n))
	}
}
