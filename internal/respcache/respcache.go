// Package respcache remembers which search task answers a given filter set
// for a given graph version, so repeated searches reuse a running or
// finished task instead of submitting a new one.
package respcache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/query"
)

// Config sizes the cache.
type Config struct {
	TTL        time.Duration
	MaxEntries int64
}

// Cache maps (graph version, search request) to a task id. A nil *Cache
// never hits.
type Cache struct {
	c       *ristretto.Cache[string, string]
	ttl     time.Duration
	metrics *metrics.Metrics
}

// New creates a cache. Each entry costs 1, so MaxEntries bounds the count.
func New(cfg Config, m *metrics.Metrics) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("respcache: %w", err)
	}
	return &Cache{c: c, ttl: cfg.TTL, metrics: m}, nil
}

// Key is the cache key of req at version.
func Key(version int64, req query.Request) string {
	return strconv.FormatInt(version, 10) + "|" + req.Key()
}

// Lookup returns the task id stored for req at version.
func (c *Cache) Lookup(version int64, req query.Request) (string, bool) {
	if c == nil {
		return "", false
	}
	id, ok := c.c.Get(Key(version, req))
	c.metrics.CacheLookup(ok)
	return id, ok
}

// Store remembers taskID for req at version.
func (c *Cache) Store(version int64, req query.Request, taskID string) {
	if c == nil {
		return
	}
	c.c.SetWithTTL(Key(version, req), taskID, 1, c.ttl)
	c.c.Wait()
}

// Forget drops the entry for req at version.
func (c *Cache) Forget(version int64, req query.Request) {
	if c == nil {
		return
	}
	c.c.Del(Key(version, req))
}

// Clear drops every entry. It runs after each mutation.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.c.Clear()
}

func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}
