// Package testutil provides shared test helpers for building recipe graphs.
package testutil

import (
	"context"
	"testing"

	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/storage"
)

// Ingredient is one fixture ingredient line.
type Ingredient struct {
	Text string // e.g. "2 eggs"
	Name string // base ingredient, e.g. "eggs"
}

// Recipe describes a fixture recipe. Properties listed in Omit are left out.
type Recipe struct {
	ID            string
	Name          string
	Instructions  string
	Link          string
	Image         string
	Ingredients   []Ingredient
	Vegan         bool
	Vegetarian    bool
	MealType      string
	Time          int
	Difficulty    int
	Calories      float64
	Protein       float64
	Fat           float64
	Carbohydrates float64
	Author        string
	Source        string
	Website       string
	Omit          []string
}

// TestData creates a temporary data directory.
func TestData(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore creates an empty graph store persisting to graph.nt inside a
// temporary data directory.
func TestStore(t *testing.T) *graph.Store {
	t.Helper()
	_, fs := TestData(t)
	s, err := graph.New(fs, "graph.nt")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Complete fills every mandatory field of r that is unset.
func Complete(r Recipe) Recipe {
	if r.Name == "" {
		r.Name = r.ID
	}
	if r.Instructions == "" {
		r.Instructions = `["Cook."]`
	}
	if r.Link == "" {
		r.Link = "https://example.org/" + r.ID
	}
	if r.Image == "" {
		r.Image = "https://example.org/" + r.ID + ".jpg"
	}
	if len(r.Ingredients) == 0 {
		r.Ingredients = []Ingredient{{Text: "1 pinch salt", Name: "salt"}}
	}
	if r.Time == 0 {
		r.Time = 30
	}
	if r.Difficulty == 0 {
		r.Difficulty = 2
	}
	if r.Author == "" {
		r.Author = "Alice"
	}
	if r.Source == "" {
		r.Source = "Cookbook"
	}
	if r.Website == "" {
		r.Website = "https://cookbook.example.org"
	}
	return r
}

// SeedRecipes writes the fixture recipes into s.
func SeedRecipes(t *testing.T, s *graph.Store, recipes ...Recipe) {
	t.Helper()
	err := s.Mutate(context.Background(), func(tx *graph.Tx) error {
		for _, r := range recipes {
			if err := seed(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func seed(tx *graph.Tx, r Recipe) error {
	omit := make(map[string]bool, len(r.Omit))
	for _, p := range r.Omit {
		omit[p] = true
	}
	rec, err := tx.Create(graph.ClassRecipe, r.ID)
	if err != nil {
		return err
	}
	set := func(e *graph.Entity, prop string, v graph.Value) error {
		if omit[prop] {
			return nil
		}
		_, err := e.Set(prop, v)
		return err
	}
	child := func(class, id, prop string, v graph.Value) (string, error) {
		e, _, err := tx.GetOrCreate(class, id)
		if err != nil {
			return "", err
		}
		if err := e.SetIfEmpty(prop, v); err != nil {
			return "", err
		}
		return e.ID, nil
	}

	for prop, v := range map[string]graph.Value{
		graph.PropRecipeName:      graph.String(r.Name),
		graph.PropHasInstructions: graph.String(r.Instructions),
		graph.PropHasLink:         graph.String(r.Link),
		graph.PropHasImageLink:    graph.String(r.Image),
		graph.PropIsVegan:         graph.Boolean(r.Vegan),
		graph.PropIsVegetarian:    graph.Boolean(r.Vegetarian),
	} {
		if err := set(rec, prop, v); err != nil {
			return err
		}
	}

	if !omit[graph.PropHasIngredient] {
		refs := make([]graph.Value, 0, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			base, err := child(graph.ClassIngredient, graph.Slug(ing.Name), graph.PropIngredientName, graph.String(ing.Name))
			if err != nil {
				return err
			}
			iwa, _, err := tx.GetOrCreate(graph.ClassIngredientWithAmount, graph.Slug(ing.Text))
			if err != nil {
				return err
			}
			if _, err := iwa.Set(graph.PropIngredientText, graph.String(ing.Text)); err != nil {
				return err
			}
			if _, err := iwa.Set(graph.PropTypeOfIngredient, graph.Ref(base)); err != nil {
				return err
			}
			refs = append(refs, graph.Ref(iwa.ID))
		}
		if _, err := rec.Set(graph.PropHasIngredient, refs...); err != nil {
			return err
		}
	}

	if r.MealType != "" {
		id, err := child(graph.ClassMealType, graph.Slug(r.MealType), graph.PropMealTypeName, graph.String(r.MealType))
		if err != nil {
			return err
		}
		if err := set(rec, graph.PropIsMealType, graph.Ref(id)); err != nil {
			return err
		}
	}

	id, err := child(graph.ClassTime, graph.ValueSlug("time", float64(r.Time)), graph.PropAmountOfTime, graph.Integer(int64(r.Time)))
	if err != nil {
		return err
	}
	if err := set(rec, graph.PropRequiresTime, graph.Ref(id)); err != nil {
		return err
	}
	id, err = child(graph.ClassDifficulty, graph.ValueSlug("difficulty", float64(r.Difficulty)), graph.PropNumericDifficulty, graph.Integer(int64(r.Difficulty)))
	if err != nil {
		return err
	}
	if err := set(rec, graph.PropHasDifficulty, graph.Ref(id)); err != nil {
		return err
	}

	amounts := map[string]float64{
		"calories": r.Calories, "protein": r.Protein, "fat": r.Fat, "carbohydrates": r.Carbohydrates,
	}
	for _, n := range graph.Nutrients {
		v := amounts[n.Key]
		id, err := child(n.Class, graph.ValueSlug(n.Key, v), n.Amount, graph.Decimal(v))
		if err != nil {
			return err
		}
		if err := set(rec, n.Has, graph.Ref(id)); err != nil {
			return err
		}
	}

	src, err := child(graph.ClassSource, graph.Slug(r.Source), graph.PropSourceName, graph.String(r.Source))
	if err != nil {
		return err
	}
	srcEnt, err := tx.Entity(graph.ClassSource, src)
	if err != nil {
		return err
	}
	if err := srcEnt.SetIfEmpty(graph.PropIsWebsite, graph.String(r.Website)); err != nil {
		return err
	}
	author, _, err := tx.GetOrCreate(graph.ClassAuthor, graph.Slug(r.Author))
	if err != nil {
		return err
	}
	if err := author.SetIfEmpty(graph.PropAuthorName, graph.String(r.Author)); err != nil {
		return err
	}
	if err := author.SetIfEmpty(graph.PropIsAuthorOf, graph.Ref(src)); err != nil {
		return err
	}
	return set(rec, graph.PropAuthoredBy, graph.Ref(author.ID))
}
