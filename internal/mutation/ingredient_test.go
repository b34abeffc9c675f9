package mutation

import (
	"testing"

	"github.com/starford/feinschmecker/internal/models"
)

func TestParseIngredient(t *testing.T) {
	cases := []struct {
		in     string
		amount float64
		hasAmt bool
		unit   string
		name   string
	}{
		{"2 eggs", 2, true, "", "eggs"},
		{"200g flour", 200, true, "g", "flour"},
		{"200 g flour", 200, true, "g", "flour"},
		{"1.5 cups of milk", 1.5, true, "cups", "milk"},
		{"1/2 tsp salt", 0.5, true, "tsp", "salt"},
		{"0,5 l water", 0.5, true, "l", "water"},
		{"salt and pepper", 0, false, "", "salt and pepper"},
		{"3", 3, true, "", "3"},
		{"  1 large onion ", 1, true, "", "large onion"},
		{"g flour", 0, false, "", "g flour"},
	}
	for _, c := range cases {
		got := ParseIngredient(c.in)
		if (got.Amount != nil) != c.hasAmt {
			t.Errorf("%q: amount present = %v", c.in, got.Amount != nil)
			continue
		}
		if c.hasAmt && *got.Amount != c.amount {
			t.Errorf("%q: amount = %v, want %v", c.in, *got.Amount, c.amount)
		}
		if got.Unit != c.unit || got.Name != c.name {
			t.Errorf("%q: unit=%q name=%q, want %q %q", c.in, got.Unit, got.Name, c.unit, c.name)
		}
	}
}

func TestResolveIngredientObject(t *testing.T) {
	amount := 3.0
	got := resolveIngredient(models.IngredientInput{Amount: &amount, Unit: "tbsp", Ingredient: "Olive Oil"})
	if got.Text != "3tbsp Olive Oil" || got.Name != "Olive Oil" || got.Unit != "tbsp" {
		t.Errorf("got %+v", got)
	}

	got = resolveIngredient(models.IngredientInput{Text: "2 eggs", Ingredient: "egg"})
	if got.Text != "2 eggs" || got.Name != "egg" || *got.Amount != 2 {
		t.Errorf("explicit ingredient should override parsed name: %+v", got)
	}
}
