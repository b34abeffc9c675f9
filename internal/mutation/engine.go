// Package mutation creates, updates and deletes recipes in the graph. Every
// operation runs in one store transaction, is persisted before it reports
// success, and is then announced to other processes.
package mutation

import (
	"context"
	"log/slog"

	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/recipes"
)

// Operation names used in change notifications and metrics.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Change describes a committed mutation.
type Change struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Hook runs after a mutation was committed and published.
type Hook func(ctx context.Context, c Change)

// Publisher announces a committed write to other processes and returns the
// new version token.
type Publisher interface {
	Publish(ctx context.Context) (int64, error)
}

// Engine applies recipe mutations. It is the only writer of the graph.
type Engine struct {
	source       recipes.Source
	publisher    Publisher
	placeholders bool
	hooks        []Hook
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPlaceholders fills missing mandatory search fields with zero values
// so incomplete recipes remain searchable.
func WithPlaceholders(on bool) Option { return func(e *Engine) { e.placeholders = on } }

// WithPublisher sets where committed writes are announced.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithHook adds a post-commit hook.
func WithHook(h Hook) Option { return func(e *Engine) { e.hooks = append(e.hooks, h) } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine creates an Engine writing to the store handed out by source.
func NewEngine(source recipes.Source, opts ...Option) *Engine {
	e := &Engine{source: source, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Create adds a recipe and returns its id.
func (e *Engine) Create(ctx context.Context, in models.RecipeInput) (string, error) {
	if err := ValidateCreate(&in); err != nil {
		return "", err
	}
	id := graph.Slug(*in.Title)
	err := e.mutate(ctx, OpCreate, id, func(tx *graph.Tx) error {
		rec, err := tx.Create(graph.ClassRecipe, id)
		if err != nil {
			return err
		}
		a := &applier{tx: tx, rec: rec}
		if err := a.apply(in); err != nil {
			return err
		}
		for _, prop := range []string{graph.PropIsVegan, graph.PropIsVegetarian} {
			if err := rec.SetIfEmpty(prop, graph.Boolean(false)); err != nil {
				return err
			}
		}
		if e.placeholders {
			if err := a.backfill(); err != nil {
				return err
			}
		}
		return a.sweep()
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update patches the fields present in in. Multi-valued relations are
// replaced, never merged.
func (e *Engine) Update(ctx context.Context, id string, in models.RecipeInput) error {
	if err := ValidateUpdate(&in); err != nil {
		return err
	}
	return e.mutate(ctx, OpUpdate, id, func(tx *graph.Tx) error {
		rec, err := tx.Entity(graph.ClassRecipe, id)
		if err != nil {
			return err
		}
		a := &applier{tx: tx, rec: rec}
		if err := a.apply(in); err != nil {
			return err
		}
		if e.placeholders {
			if err := a.backfill(); err != nil {
				return err
			}
		}
		return a.sweep()
	})
}

// Delete removes a recipe and any time, nutrient and ingredient line
// entities no other recipe still references.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx, OpDelete, id, func(tx *graph.Tx) error {
		rec, err := tx.Entity(graph.ClassRecipe, id)
		if err != nil {
			return err
		}
		a := &applier{tx: tx, rec: rec}
		props := []string{graph.PropRequiresTime, graph.PropHasIngredient}
		for _, n := range graph.Nutrients {
			props = append(props, n.Has)
		}
		for _, p := range props {
			vals, err := rec.Get(p)
			if err != nil {
				return err
			}
			a.detached(vals)
		}
		if err := tx.Destroy(id); err != nil {
			return err
		}
		return a.sweep()
	})
}

func (e *Engine) mutate(ctx context.Context, op, id string, fn func(*graph.Tx) error) error {
	store, err := e.source.Acquire(ctx)
	if err != nil {
		e.metrics.Mutation(op, err)
		return err
	}
	err = store.Mutate(ctx, fn)
	e.metrics.Mutation(op, err)
	if err != nil {
		e.logger.Warn("mutation: failed",
			slog.String("op", op),
			slog.String("id", id),
			slog.String("error", err.Error()))
		return err
	}

	change := Change{Op: op, ID: id}
	if e.publisher != nil {
		v, perr := e.publisher.Publish(ctx)
		if perr != nil {
			// The write is durable; workers pick it up on the next publish.
			e.logger.Error("mutation: publish failed",
				slog.String("op", op),
				slog.String("id", id),
				slog.String("error", perr.Error()))
		}
		change.Version = v
	}
	e.logger.Info("mutation: committed",
		slog.String("op", op),
		slog.String("id", id),
		slog.Int64("version", change.Version))
	for _, h := range e.hooks {
		h(ctx, change)
	}
	return nil
}
