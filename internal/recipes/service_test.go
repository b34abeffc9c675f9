package recipes

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/testutil"
)

func seeded(t *testing.T) *Service {
	t.Helper()
	s := testutil.TestStore(t)
	testutil.SeedRecipes(t, s,
		testutil.Complete(testutil.Recipe{
			ID: "pancakes", Name: "Pancakes", Time: 15, Difficulty: 1, Vegetarian: true,
			MealType: "Breakfast", Calories: 350, Protein: 10,
			Instructions: `["Step 1: Mix.", "Step 2: Fry."]`,
			Ingredients: []testutil.Ingredient{
				{Text: "2 eggs", Name: "eggs"},
				{Text: "200g flour", Name: "flour"},
			},
		}),
		testutil.Complete(testutil.Recipe{ID: "stew", Name: "Stew", Time: 90, Calories: 600}),
		testutil.Complete(testutil.Recipe{ID: "salad", Name: "Salad", Time: 10, Vegan: true, Vegetarian: true}),
		testutil.Complete(testutil.Recipe{ID: "draft", Name: "Draft", Omit: []string{graph.PropHasImageLink}}),
	)
	return NewService(StoreSource{Store: s}, nil, nil)
}

func TestSearchPage(t *testing.T) {
	svc := seeded(t)
	page, err := svc.Search(context.Background(), query.Request{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("total = %d, want 3 (draft lacks an image)", page.Total)
	}
	if len(page.Recipes) != 2 {
		t.Fatalf("page size = %d", len(page.Recipes))
	}
	if page.Recipes[0].Name != "Pancakes" || page.Recipes[1].Name != "Salad" {
		t.Errorf("order = %s, %s", page.Recipes[0].Name, page.Recipes[1].Name)
	}
	if page.TotalPages() != 2 {
		t.Errorf("total pages = %d", page.TotalPages())
	}
}

func TestSearchFilters(t *testing.T) {
	svc := seeded(t)
	limit := 20
	page, err := svc.Search(context.Background(), query.Request{
		Page: 1, PerPage: limit,
		Filters: query.Filters{Ingredients: []string{"egg"}, Time: &limit},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 1 || len(page.Recipes) != 1 {
		t.Fatalf("total=%d len=%d", page.Total, len(page.Recipes))
	}
	r := page.Recipes[0]
	if r.Name != "Pancakes" || r.Time != 15.0 || r.MealType != "Breakfast" {
		t.Errorf("got %+v", r)
	}
	if len(r.Ingredients) != 2 || r.Ingredients[0] != "2 eggs" || r.Ingredients[1] != "200g flour" {
		t.Errorf("ingredients = %q", r.Ingredients)
	}
	if len(r.Instructions) != 2 || r.Instructions[0] != "Mix." {
		t.Errorf("instructions = %q", r.Instructions)
	}
}

func TestSearchWithoutStore(t *testing.T) {
	svc := NewService(StoreSource{}, nil, nil)
	_, err := svc.Search(context.Background(), query.Request{Page: 1, PerPage: 10})
	if !errors.Is(err, apperr.ErrNoStoreLoaded) {
		t.Errorf("err = %v", err)
	}
}

func TestGetIncompleteRecipe(t *testing.T) {
	svc := seeded(t)
	r, err := svc.Get(context.Background(), "draft")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Name != "Draft" || r.ImageLink != "" {
		t.Errorf("got %+v", r)
	}
	if r.Author != "Alice" || r.SourceName != "Cookbook" || r.Time != 30 {
		t.Errorf("linked fields: %+v", r)
	}
	if len(r.Ingredients) != 1 || r.Ingredients[0] != "1 pinch salt" {
		t.Errorf("ingredients = %q", r.Ingredients)
	}
}

func TestGetNotFound(t *testing.T) {
	svc := seeded(t)
	for _, id := range []string{"nope", "salt", "alice"} {
		if _, err := svc.Get(context.Background(), id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want not found", id, err)
		}
	}
}
