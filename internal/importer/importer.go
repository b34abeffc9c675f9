// Package importer bulk-loads a recipe dataset into the graph through the
// mutation engine.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
)

// Default source credited for imported recipes.
const (
	DefaultSourceName = "BBC GoodFood"
	DefaultSourceLink = "https://bbcgoodfood.com"
)

// Record is one dataset entry. JSON datasets decode through YAML.
type Record struct {
	Title        string       `yaml:"title"`
	Instructions Instructions `yaml:"instructions"`
	Ingredients  []Ingredient `yaml:"ingredients"`
	Author       string       `yaml:"author"`
	Time         *float64     `yaml:"time"`
	Difficulty   *float64     `yaml:"difficulty"`
	MealType     string       `yaml:"meal type"`
	MealTypeAlt  string       `yaml:"meal_type"`
	Vegan        *bool        `yaml:"vegan"`
	Vegetarian   *bool        `yaml:"vegetarian"`
	Nutrients    *Nutrients   `yaml:"nutrients"`
	Link         string       `yaml:"source"`
	Image        string       `yaml:"image"`
}

// Ingredient is a dataset ingredient line.
type Ingredient struct {
	Text       string   `yaml:"id"`
	Amount     *float64 `yaml:"amount"`
	Unit       string   `yaml:"unit"`
	Ingredient string   `yaml:"ingredient"`
}

// Nutrients are per-serving values.
type Nutrients struct {
	Calories      *float64 `yaml:"kcal"`
	Protein       *float64 `yaml:"protein"`
	Fat           *float64 `yaml:"fat"`
	Carbohydrates *float64 `yaml:"carbs"`
}

// Instructions accepts a single string or a list of steps.
type Instructions []string

func (s *Instructions) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		*s = Instructions{value.Value}
		return nil
	case yaml.SequenceNode:
		var steps []string
		if err := value.Decode(&steps); err != nil {
			return err
		}
		*s = steps
		return nil
	}
	return fmt.Errorf("line %d: instructions must be a string or a list", value.Line)
}

// Load decodes a dataset: a JSON or YAML list of records.
func Load(r io.Reader) ([]Record, error) {
	var records []Record
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("importer: decode: %w", err)
	}
	return records, nil
}

// LoadFile decodes the dataset at path.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// DeriveDifficulty rates a recipe from its ingredient count and minutes:
// ingredients*3 + minutes below 20 is easy, below 60 moderate, else hard.
func DeriveDifficulty(ingredients int, minutes float64) int {
	score := float64(ingredients*3) + minutes
	switch {
	case score < 20:
		return 1
	case score < 60:
		return 2
	default:
		return 3
	}
}

// Input converts r into a create payload credited to source.
func (r Record) Input(sourceName, sourceLink string) models.RecipeInput {
	in := models.RecipeInput{
		Title:        models.String(r.Title),
		Instructions: models.Instructions(r.Instructions),
	}
	for _, ing := range r.Ingredients {
		amount := 1.0
		if ing.Amount != nil {
			amount = *ing.Amount
		}
		unit := ing.Unit
		if unit == "None" {
			unit = ""
		}
		in.Ingredients = append(in.Ingredients, models.IngredientInput{
			Text:       ing.Text,
			Amount:     &amount,
			Unit:       unit,
			Ingredient: ing.Ingredient,
		})
	}
	if r.Author != "" {
		in.Author = models.String(r.Author)
		in.SourceName = models.String(sourceName)
		in.SourceLink = models.String(sourceLink)
	}
	if r.Time != nil {
		in.Time = models.Float(*r.Time)
	}
	switch {
	case r.Difficulty != nil:
		in.Difficulty = models.Float(*r.Difficulty)
	case r.Time != nil:
		in.Difficulty = models.Float(float64(DeriveDifficulty(len(r.Ingredients), *r.Time)))
	}
	mealType := r.MealType
	if mealType == "" {
		mealType = r.MealTypeAlt
	}
	if mealType != "" && !strings.EqualFold(mealType, "misc") {
		in.MealType = models.String(mealType)
	}
	if r.Vegan != nil {
		in.Vegan = models.Bool(*r.Vegan)
	}
	if r.Vegetarian != nil {
		in.Vegetarian = models.Bool(*r.Vegetarian)
	}
	if n := r.Nutrients; n != nil {
		set := func(dst **models.FlexFloat, v *float64) {
			if v != nil {
				*dst = models.Float(*v)
			}
		}
		set(&in.Calories, n.Calories)
		set(&in.Protein, n.Protein)
		set(&in.Fat, n.Fat)
		set(&in.Carbohydrates, n.Carbohydrates)
	}
	if r.Link != "" {
		in.Link = models.String(r.Link)
	}
	if r.Image != "" {
		in.ImageLink = models.String(r.Image)
	}
	return in
}

// Report summarizes an import run.
type Report struct {
	Created int
	Skipped int // already present
	Failed  int
}

// Importer creates dataset records through a mutation engine.
type Importer struct {
	engine     *mutation.Engine
	sourceName string
	sourceLink string
	logger     *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithSource sets the source credited for imported authors.
func WithSource(name, link string) Option {
	return func(im *Importer) {
		im.sourceName = name
		im.sourceLink = link
	}
}

func WithLogger(l *slog.Logger) Option { return func(im *Importer) { im.logger = l } }

// New creates an Importer.
func New(eng *mutation.Engine, opts ...Option) *Importer {
	im := &Importer{
		engine:     eng,
		sourceName: DefaultSourceName,
		sourceLink: DefaultSourceLink,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import creates every record. Records that already exist are skipped and
// invalid ones are logged and counted; any other error stops the run.
func (im *Importer) Import(ctx context.Context, records []Record) (Report, error) {
	var rep Report
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		id, err := im.engine.Create(ctx, r.Input(im.sourceName, im.sourceLink))
		switch {
		case err == nil:
			rep.Created++
			im.logger.Debug("importer: created", slog.String("id", id))
		case errors.Is(err, apperr.ErrAlreadyExists):
			rep.Skipped++
		case errors.Is(err, apperr.ErrValidation):
			rep.Failed++
			im.logger.Warn("importer: invalid record",
				slog.Int("index", i),
				slog.String("title", r.Title),
				slog.String("error", err.Error()))
		default:
			return rep, fmt.Errorf("importer: record %d (%s): %w", i, r.Title, err)
		}
	}
	im.logger.Info("importer: done",
		slog.Int("created", rep.Created),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed))
	return rep, nil
}
