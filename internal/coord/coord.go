// Package coord publishes and reads the shared graph version pointer: a
// monotonically increasing version token plus the location of the current
// graph file. It is the only state shared between processes.
package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Keys, relative to the configured prefix.
const (
	KeyVersion = "ontology_version"
	KeyURI     = "ontology_uri"
	KeyLocal   = "ontology_local"
	KeyReady   = "ontology_ready"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "feinschmecker:"

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("coord: store unavailable")

// Store is a key-value store with single-value atomic writes.
type Store interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key.
	Set(ctx context.Context, key, value string) error
	// Update atomically replaces key with fn(current). current is "" when
	// the key is absent.
	Update(ctx context.Context, key string, fn func(current string) (string, error)) (string, error)
	Close() error
}

// State is a snapshot of the coordination keys.
type State struct {
	Version int64
	URI     string
	Local   string
	Ready   int64
}

// Location returns where the current graph should be loaded from: the local
// file once it is marked ready for the current version, else the source
// URI, else fallback.
func (s State) Location(fallback string) string {
	if s.Local != "" && s.Version != 0 && s.Ready == s.Version {
		return s.Local
	}
	if s.URI != "" {
		return s.URI
	}
	return fallback
}

// Coordinator reads and publishes State through a Store.
type Coordinator struct {
	store  Store
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock used for version tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator over store with keys under prefix.
func New(store Store, prefix string, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, prefix: prefix, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) key(k string) string { return c.prefix + k }

// Current reads the coordination keys.
func (c *Coordinator) Current(ctx context.Context) (State, error) {
	var st State
	var err error
	if st.Version, err = c.getInt(ctx, KeyVersion); err != nil {
		return State{}, err
	}
	if st.URI, _, err = c.store.Get(ctx, c.key(KeyURI)); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if st.Local, _, err = c.store.Get(ctx, c.key(KeyLocal)); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if st.Ready, err = c.getInt(ctx, KeyReady); err != nil {
		return State{}, err
	}
	return st, nil
}

func (c *Coordinator) getInt(ctx context.Context, k string) (int64, error) {
	raw, ok, err := c.store.Get(ctx, c.key(k))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.logger.Warn("coord: malformed value", slog.String("key", k), slog.String("value", raw))
		return 0, nil
	}
	return n, nil
}

// Publish bumps the version token and, when local is not empty, records the
// file the new version was written to. The new token is strictly greater
// than the previous one even within the same second.
func (c *Coordinator) Publish(ctx context.Context, local string) (int64, error) {
	if local != "" {
		if err := c.store.Set(ctx, c.key(KeyLocal), local); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	var version int64
	raw, err := c.store.Update(ctx, c.key(KeyVersion), func(cur string) (string, error) {
		prev, _ := strconv.ParseInt(cur, 10, 64)
		version = max(c.now().Unix(), prev+1)
		return strconv.FormatInt(version, 10), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		version = v
	}
	if local != "" {
		if err := c.store.Set(ctx, c.key(KeyReady), raw); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	c.logger.Info("coord: version published",
		slog.Int64("version", version),
		slog.String("local", local))
	return version, nil
}

// PublishSource records the authoritative source location and publishes a
// new version for it.
func (c *Coordinator) PublishSource(ctx context.Context, uri, local string) (int64, error) {
	if err := c.store.Set(ctx, c.key(KeyURI), uri); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return c.Publish(ctx, local)
}

// Close closes the underlying store.
func (c *Coordinator) Close() error { return c.store.Close() }
