package recipes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/query"
)

// SlowSearch is the duration above which a search is logged as slow.
const SlowSearch = time.Second

// Source hands out the graph store that is current for this process.
type Source interface {
	Acquire(ctx context.Context) (*graph.Store, error)
}

// StoreSource serves one fixed store.
type StoreSource struct{ Store *graph.Store }

func (s StoreSource) Acquire(context.Context) (*graph.Store, error) {
	if s.Store == nil {
		return nil, apperr.ErrNoStoreLoaded
	}
	return s.Store, nil
}

// Service runs searches and reads against the current graph.
type Service struct {
	source  Source
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a Service. m may be nil.
func NewService(source Source, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, metrics: m, logger: logger}
}

// Search runs the filtered, paged search. A failing count query is logged
// and reported as a total of zero; a failing result query is an error.
func (s *Service) Search(ctx context.Context, req query.Request) (models.SearchPage, error) {
	store, err := s.source.Acquire(ctx)
	if err != nil {
		return models.SearchPage{}, err
	}
	start := time.Now()
	resultQ, countQ := query.Compile(req.Filters, req.Limit(), req.Offset())

	total, err := store.Count(ctx, countQ)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SearchPage{}, ctxErr
		}
		s.logger.Warn("recipes: count failed, using zero", slog.String("error", err.Error()))
		s.metrics.CountFallback()
		total = 0
	}
	rows, err := store.Select(ctx, resultQ)
	if err != nil {
		return models.SearchPage{}, fmt.Errorf("recipes: search: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveSearch(elapsed)
	if elapsed > SlowSearch {
		s.logger.Warn("recipes: slow search",
			slog.Duration("elapsed", elapsed),
			slog.String("filters", req.Key()))
	}
	return models.SearchPage{
		Recipes: Normalize(rows),
		Page:    req.Page,
		PerPage: req.PerPage,
		Total:   total,
	}, nil
}

// Get reads one recipe by id. Unlike Search it does not require the
// mandatory search fields to be present.
func (s *Service) Get(ctx context.Context, id string) (models.Recipe, error) {
	store, err := s.source.Acquire(ctx)
	if err != nil {
		return models.Recipe{}, err
	}
	var out models.Recipe
	err = store.View(ctx, func(tx *graph.Tx) error {
		var err error
		out, err = Read(tx, id)
		return err
	})
	return out, err
}

// Read builds the normalized record of recipe id inside tx.
func Read(tx *graph.Tx, id string) (models.Recipe, error) {
	rec, err := tx.Entity(graph.ClassRecipe, id)
	if err != nil {
		return models.Recipe{}, err
	}
	r := models.Recipe{ID: id, Ingredients: []string{}, Instructions: []string{}}
	rd := reader{tx: tx}

	r.Name = rd.literal(rec, graph.PropRecipeName)
	r.Link = rd.literal(rec, graph.PropHasLink)
	r.ImageLink = rd.literal(rec, graph.PropHasImageLink)
	r.Instructions = ParseInstructions(rd.literal(rec, graph.PropHasInstructions))
	r.Vegan = models.ParseBool(rd.literal(rec, graph.PropIsVegan))
	r.Vegetarian = models.ParseBool(rd.literal(rec, graph.PropIsVegetarian))
	r.MealType = rd.literal(rd.ref(rec, graph.PropIsMealType, graph.ClassMealType), graph.PropMealTypeName)
	r.Time = number(rd.literal(rd.ref(rec, graph.PropRequiresTime, graph.ClassTime), graph.PropAmountOfTime))
	r.Difficulty = number(rd.literal(rd.ref(rec, graph.PropHasDifficulty, graph.ClassDifficulty), graph.PropNumericDifficulty))

	amounts := make(map[string]float64, len(graph.Nutrients))
	for _, n := range graph.Nutrients {
		amounts[n.Key] = number(rd.literal(rd.ref(rec, n.Has, n.Class), n.Amount))
	}
	r.Calories = amounts["calories"]
	r.Protein = amounts["protein"]
	r.Fat = amounts["fat"]
	r.Carbohydrates = amounts["carbohydrates"]

	author := rd.ref(rec, graph.PropAuthoredBy, graph.ClassAuthor)
	r.Author = rd.literal(author, graph.PropAuthorName)
	source := rd.ref(author, graph.PropIsAuthorOf, graph.ClassSource)
	r.SourceName = rd.literal(source, graph.PropSourceName)
	r.SourceLink = rd.literal(source, graph.PropIsWebsite)

	if rd.err == nil {
		var vals []graph.Value
		vals, rd.err = rec.Get(graph.PropHasIngredient)
		for _, v := range vals {
			iwa := rd.entity(graph.ClassIngredientWithAmount, v.Lexical)
			if line := rd.literal(iwa, graph.PropIngredientText); line != "" {
				r.Ingredients = append(r.Ingredients, line)
			}
		}
	}
	if rd.err != nil {
		return models.Recipe{}, fmt.Errorf("recipes: read %s: %w", id, rd.err)
	}
	return r, nil
}

// reader walks entity links and keeps the first error. Missing links and
// dangling references read as empty.
type reader struct {
	tx  *graph.Tx
	err error
}

func (rd *reader) entity(class, id string) *graph.Entity {
	if rd.err != nil {
		return nil
	}
	e, err := rd.tx.Entity(class, id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			rd.err = err
		}
		return nil
	}
	return e
}

func (rd *reader) ref(from *graph.Entity, prop, class string) *graph.Entity {
	if from == nil || rd.err != nil {
		return nil
	}
	v, ok, err := from.First(prop)
	if err != nil {
		rd.err = err
		return nil
	}
	if !ok {
		return nil
	}
	return rd.entity(class, v.Lexical)
}

func (rd *reader) literal(from *graph.Entity, prop string) string {
	if from == nil || rd.err != nil {
		return ""
	}
	v, ok, err := from.First(prop)
	if err != nil {
		rd.err = err
		return ""
	}
	if !ok {
		return ""
	}
	return v.Lexical
}
