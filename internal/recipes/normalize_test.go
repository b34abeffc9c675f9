package recipes

import (
	"reflect"
	"testing"
)

func TestNormalizeCoercesTypes(t *testing.T) {
	rows := [][]any{{
		"pancakes", "Pancakes", "https://x/p", "https://x/p.jpg",
		`["Step 1: Mix.", "Step 2: Fry."]`, "2 eggs#200g flour",
		"TRUE", []byte("no"), "Breakfast", int64(15), "1",
		float64(350), "10.5", "abc", nil,
		"Alice", "Cookbook", "https://cookbook",
	}}
	got := Normalize(rows)
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	r := got[0]
	if r.ID != "pancakes" || r.Name != "Pancakes" || r.MealType != "Breakfast" {
		t.Errorf("strings: %+v", r)
	}
	if !r.Vegan || r.Vegetarian {
		t.Errorf("vegan=%v vegetarian=%v", r.Vegan, r.Vegetarian)
	}
	if r.Time != 15 || r.Difficulty != 1 || r.Calories != 350 || r.Protein != 10.5 {
		t.Errorf("numbers: %+v", r)
	}
	if r.Fat != 0 || r.Carbohydrates != 0 {
		t.Errorf("malformed numbers should fall back to 0: fat=%v carbs=%v", r.Fat, r.Carbohydrates)
	}
	if !reflect.DeepEqual(r.Ingredients, []string{"2 eggs", "200g flour"}) {
		t.Errorf("ingredients = %q", r.Ingredients)
	}
	if !reflect.DeepEqual(r.Instructions, []string{"Mix.", "Fry."}) {
		t.Errorf("instructions = %q", r.Instructions)
	}
	if r.SourceLink != "https://cookbook" {
		t.Errorf("source link = %q", r.SourceLink)
	}
}

func TestNormalizeShortRow(t *testing.T) {
	got := Normalize([][]any{{"soup", "Soup", "https://x/s"}})
	r := got[0]
	if r.ID != "soup" || r.Link != "https://x/s" {
		t.Errorf("got %+v", r)
	}
	if r.ImageLink != "" || r.Time != 0 || r.Author != "" {
		t.Errorf("missing columns should stay empty: %+v", r)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("got %d records", len(got))
	}
}

func TestParseInstructions(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`["Mix.", "Fry."]`, []string{"Mix.", "Fry."}},
		{`['Step 1: Mix the batter', 'Step 2: Fry it']`, []string{"Mix the batter", "Fry it"}},
		{`['1. Boil water', '2) Add pasta']`, []string{"Boil water", "Add pasta"}},
		{"Mix. Fry.", []string{"Mix. Fry."}},
		{`["10 minutes rest"]`, []string{"10 minutes rest"}},
		{`["1.5 l water goes into the pot", "2) Boil"]`, []string{"1.5 l water goes into the pot", "Boil"}},
		{`["3. 200 g flour"]`, []string{"3. 200 g flour"}},
		{`["2: keep the colon"]`, []string{"2: keep the colon"}},
		{"", []string{}},
		{`[]`, []string{}},
	}
	for _, c := range cases {
		got := ParseInstructions(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseInstructions(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
