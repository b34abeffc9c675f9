package mutation

import (
	"encoding/json"
	"strings"

	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/query"
)

// Placeholder names used when backfilling incomplete recipes.
const (
	PlaceholderAuthor     = "Anonymous"
	PlaceholderSource     = "User Submission"
	PlaceholderIngredient = "ingredient"
)

// applier writes payload fields onto one recipe and remembers detached
// shared entities for the orphan sweep.
type applier struct {
	tx      *graph.Tx
	rec     *graph.Entity
	orphans []string
}

func (a *applier) detached(vals []graph.Value, keep ...string) {
outer:
	for _, v := range vals {
		if !v.IsRef() {
			continue
		}
		for _, k := range keep {
			if v.Lexical == k {
				continue outer
			}
		}
		a.orphans = append(a.orphans, v.Lexical)
	}
}

// sweep destroys detached entities nothing references any more.
func (a *applier) sweep() error {
	seen := make(map[string]bool, len(a.orphans))
	for _, id := range a.orphans {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := a.tx.DestroyIfOrphan(id); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) set(prop string, v graph.Value) error {
	_, err := a.rec.Set(prop, v)
	return err
}

func (a *applier) apply(in models.RecipeInput) error {
	if in.Title != nil {
		if err := a.set(graph.PropRecipeName, graph.String(strings.TrimSpace(*in.Title))); err != nil {
			return err
		}
	}
	if in.Instructions != nil {
		if err := a.set(graph.PropHasInstructions, graph.String(encodeSteps(in.Instructions))); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		prop string
		v    *string
	}{{graph.PropHasLink, in.Link}, {graph.PropHasImageLink, in.ImageLink}} {
		if f.v != nil {
			if err := a.set(f.prop, graph.String(strings.TrimSpace(*f.v))); err != nil {
				return err
			}
		}
	}
	for _, f := range []struct {
		prop string
		v    *models.FlexBool
	}{{graph.PropIsVegan, in.Vegan}, {graph.PropIsVegetarian, in.Vegetarian}} {
		if f.v != nil {
			if err := a.set(f.prop, graph.Boolean(bool(*f.v))); err != nil {
				return err
			}
		}
	}
	if in.Time != nil {
		n := float64(*in.Time)
		if err := a.value(graph.PropRequiresTime, graph.ClassTime, "time", graph.PropAmountOfTime, graph.Integer(int64(n)), n, true); err != nil {
			return err
		}
	}
	if in.Difficulty != nil {
		n := float64(*in.Difficulty)
		if err := a.value(graph.PropHasDifficulty, graph.ClassDifficulty, "difficulty", graph.PropNumericDifficulty, graph.Integer(int64(n)), n, false); err != nil {
			return err
		}
	}
	amounts := map[string]*models.FlexFloat{
		"calories": in.Calories, "protein": in.Protein, "fat": in.Fat, "carbohydrates": in.Carbohydrates,
	}
	for _, n := range graph.Nutrients {
		if p := amounts[n.Key]; p != nil {
			f := float64(*p)
			if err := a.value(n.Has, n.Class, n.Key, n.Amount, graph.Decimal(f), f, true); err != nil {
				return err
			}
		}
	}
	if in.MealType != nil {
		if err := a.mealType(*in.MealType); err != nil {
			return err
		}
	}
	if in.Ingredients != nil {
		if err := a.ingredients(in.Ingredients); err != nil {
			return err
		}
	}
	return a.authorship(in)
}

// value links the recipe to the value entity for n, shared by every recipe
// with the same value.
func (a *applier) value(prop, class, prefix, amountProp string, v graph.Value, n float64, sweep bool) error {
	e, _, err := a.tx.GetOrCreate(class, graph.ValueSlug(prefix, n))
	if err != nil {
		return err
	}
	if err := e.SetIfEmpty(amountProp, v); err != nil {
		return err
	}
	old, err := a.rec.Set(prop, graph.Ref(e.ID))
	if err != nil {
		return err
	}
	if sweep {
		a.detached(old, e.ID)
	}
	return nil
}

func (a *applier) mealType(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		_, err := a.rec.Set(graph.PropIsMealType)
		return err
	}
	if canonical, ok := query.CanonicalMealType(name); ok {
		name = canonical
	}
	mt, _, err := a.tx.GetOrCreate(graph.ClassMealType, graph.Slug(name))
	if err != nil {
		return err
	}
	if err := mt.SetIfEmpty(graph.PropMealTypeName, graph.String(name)); err != nil {
		return err
	}
	return a.set(graph.PropIsMealType, graph.Ref(mt.ID))
}

func (a *applier) ingredients(list []models.IngredientInput) error {
	refs := make([]graph.Value, 0, len(list))
	keep := make([]string, 0, len(list))
	for _, raw := range list {
		ing := resolveIngredient(raw)
		id, err := a.ingredientLine(ing)
		if err != nil {
			return err
		}
		refs = append(refs, graph.Ref(id))
		keep = append(keep, id)
	}
	old, err := a.rec.Set(graph.PropHasIngredient, refs...)
	if err != nil {
		return err
	}
	a.detached(old, keep...)
	return nil
}

// ingredientLine gets or creates the line entity for ing and its base
// ingredient, and returns the line id.
func (a *applier) ingredientLine(ing Ingredient) (string, error) {
	base, _, err := a.tx.GetOrCreate(graph.ClassIngredient, graph.Slug(ing.Name))
	if err != nil {
		return "", err
	}
	if err := base.SetIfEmpty(graph.PropIngredientName, graph.String(ing.Name)); err != nil {
		return "", err
	}
	line, _, err := a.tx.GetOrCreate(graph.ClassIngredientWithAmount, graph.Slug(ing.Text))
	if err != nil {
		return "", err
	}
	if _, err := line.Set(graph.PropIngredientText, graph.String(ing.Text)); err != nil {
		return "", err
	}
	var amount, unit []graph.Value
	if ing.Amount != nil {
		amount = append(amount, graph.Decimal(*ing.Amount))
	}
	if ing.Unit != "" {
		unit = append(unit, graph.String(ing.Unit))
	}
	if _, err := line.Set(graph.PropIngredientAmount, amount...); err != nil {
		return "", err
	}
	if _, err := line.Set(graph.PropIngredientUnit, unit...); err != nil {
		return "", err
	}
	if _, err := line.Set(graph.PropTypeOfIngredient, graph.Ref(base.ID)); err != nil {
		return "", err
	}
	return line.ID, nil
}

// authorship links author and source. A source given without an author is
// attached to the recipe's current author.
func (a *applier) authorship(in models.RecipeInput) error {
	if in.Author != nil {
		name := strings.TrimSpace(*in.Author)
		if name == "" {
			if _, err := a.rec.Set(graph.PropAuthoredBy); err != nil {
				return err
			}
		} else {
			author, _, err := a.tx.GetOrCreate(graph.ClassAuthor, graph.Slug(name))
			if err != nil {
				return err
			}
			if err := author.SetIfEmpty(graph.PropAuthorName, graph.String(name)); err != nil {
				return err
			}
			if err := a.set(graph.PropAuthoredBy, graph.Ref(author.ID)); err != nil {
				return err
			}
		}
	}

	author, err := a.author()
	if err != nil || author == nil {
		return err
	}
	var source *graph.Entity
	if in.SourceName != nil && strings.TrimSpace(*in.SourceName) != "" {
		name := strings.TrimSpace(*in.SourceName)
		source, _, err = a.tx.GetOrCreate(graph.ClassSource, graph.Slug(name))
		if err != nil {
			return err
		}
		if err := source.SetIfEmpty(graph.PropSourceName, graph.String(name)); err != nil {
			return err
		}
		if _, err := author.Set(graph.PropIsAuthorOf, graph.Ref(source.ID)); err != nil {
			return err
		}
	} else if in.SourceLink != nil {
		if v, ok, err := author.First(graph.PropIsAuthorOf); err != nil {
			return err
		} else if ok {
			source, err = a.tx.Entity(graph.ClassSource, v.Lexical)
			if err != nil {
				return err
			}
		}
	}
	if source != nil && in.SourceLink != nil {
		if _, err := source.Set(graph.PropIsWebsite, graph.String(strings.TrimSpace(*in.SourceLink))); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) author() (*graph.Entity, error) {
	v, ok, err := a.rec.First(graph.PropAuthoredBy)
	if err != nil || !ok {
		return nil, err
	}
	return a.tx.Entity(graph.ClassAuthor, v.Lexical)
}

// backfill gives every mandatory search field a zero value when missing.
func (a *applier) backfill() error {
	for _, d := range []struct {
		prop string
		v    graph.Value
	}{
		{graph.PropHasInstructions, graph.String("[]")},
		{graph.PropHasLink, graph.String("")},
		{graph.PropHasImageLink, graph.String("")},
		{graph.PropIsVegan, graph.Boolean(false)},
		{graph.PropIsVegetarian, graph.Boolean(false)},
	} {
		if err := a.rec.SetIfEmpty(d.prop, d.v); err != nil {
			return err
		}
	}

	missing := func(prop string) (bool, error) {
		_, ok, err := a.rec.First(prop)
		return !ok, err
	}
	if m, err := missing(graph.PropHasIngredient); err != nil {
		return err
	} else if m {
		id, err := a.ingredientLine(Ingredient{Text: PlaceholderIngredient, Name: PlaceholderIngredient})
		if err != nil {
			return err
		}
		if err := a.set(graph.PropHasIngredient, graph.Ref(id)); err != nil {
			return err
		}
	}
	if m, err := missing(graph.PropRequiresTime); err != nil {
		return err
	} else if m {
		if err := a.value(graph.PropRequiresTime, graph.ClassTime, "time", graph.PropAmountOfTime, graph.Integer(0), 0, false); err != nil {
			return err
		}
	}
	if m, err := missing(graph.PropHasDifficulty); err != nil {
		return err
	} else if m {
		if err := a.value(graph.PropHasDifficulty, graph.ClassDifficulty, "difficulty", graph.PropNumericDifficulty, graph.Integer(0), 0, false); err != nil {
			return err
		}
	}
	for _, n := range graph.Nutrients {
		if m, err := missing(n.Has); err != nil {
			return err
		} else if m {
			if err := a.value(n.Has, n.Class, n.Key, n.Amount, graph.Decimal(0), 0, false); err != nil {
				return err
			}
		}
	}

	author, err := a.author()
	if err != nil {
		return err
	}
	if author == nil {
		author, _, err = a.tx.GetOrCreate(graph.ClassAuthor, graph.Slug(PlaceholderAuthor))
		if err != nil {
			return err
		}
		if err := author.SetIfEmpty(graph.PropAuthorName, graph.String(PlaceholderAuthor)); err != nil {
			return err
		}
		if err := a.set(graph.PropAuthoredBy, graph.Ref(author.ID)); err != nil {
			return err
		}
	}
	if _, ok, err := author.First(graph.PropIsAuthorOf); err != nil {
		return err
	} else if !ok {
		source, _, err := a.tx.GetOrCreate(graph.ClassSource, graph.Slug(PlaceholderSource))
		if err != nil {
			return err
		}
		if err := source.SetIfEmpty(graph.PropSourceName, graph.String(PlaceholderSource)); err != nil {
			return err
		}
		if err := source.SetIfEmpty(graph.PropIsWebsite, graph.String("")); err != nil {
			return err
		}
		if _, err := author.Set(graph.PropIsAuthorOf, graph.Ref(source.ID)); err != nil {
			return err
		}
	}
	return nil
}

func encodeSteps(steps []string) string {
	clean := make([]string, 0, len(steps))
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	data, _ := json.Marshal(clean)
	return string(data)
}
