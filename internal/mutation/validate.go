package mutation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/query"
)

func number(lo, hi float64, whole bool) validation.Rule {
	return validation.By(func(v any) error {
		p, _ := v.(*models.FlexFloat)
		if p == nil {
			return nil
		}
		f := float64(*p)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.New("must be a finite number")
		}
		if whole && f != math.Trunc(f) {
			return errors.New("must be a whole number")
		}
		if f < lo || f > hi {
			if hi == math.MaxFloat64 {
				return validation.NewError("validation_min", "must be no less than {{.threshold}}").
					SetParams(map[string]any{"threshold": lo})
			}
			return validation.NewError("validation_range", "must be between {{.min}} and {{.max}}").
				SetParams(map[string]any{"min": lo, "max": hi})
		}
		return nil
	})
}

var mealType = validation.By(func(v any) error {
	p, _ := v.(*string)
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	if _, ok := query.CanonicalMealType(*p); !ok {
		return errors.New("must be one of " + strings.Join(graph.MealTypes, ", "))
	}
	return nil
})

var ingredientLine = validation.By(func(v any) error {
	in, _ := v.(models.IngredientInput)
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.Ingredient) == "" {
		return errors.New("needs a name")
	}
	if in.Amount != nil && *in.Amount < 0 {
		return errors.New("amount must be non-negative")
	}
	for _, s := range []string{in.Text, in.Ingredient, in.Unit} {
		if strings.Contains(s, query.Separator) {
			return errors.New("must not contain " + strconv.Quote(query.Separator))
		}
	}
	return nil
})

// distinctLines rejects lists where two entries resolve to the same line
// entity; the store would keep only one of them.
var distinctLines = validation.By(func(v any) error {
	list, _ := v.([]models.IngredientInput)
	seen := make(map[string]int, len(list))
	for i, in := range list {
		id := graph.Slug(resolveIngredient(in).Text)
		if j, ok := seen[id]; ok {
			return fmt.Errorf("entries %d and %d are the same line", j, i)
		}
		seen[id] = i
	}
	return nil
})

func fieldRules(in *models.RecipeInput) []*validation.FieldRules {
	rules := []*validation.FieldRules{
		validation.Field(&in.Time, number(0, math.MaxFloat64, true)),
		validation.Field(&in.Difficulty, number(graph.MinDifficulty, graph.MaxDifficulty, true)),
		validation.Field(&in.MealType, mealType),
		validation.Field(&in.Ingredients, validation.Each(ingredientLine), distinctLines),
		validation.Field(&in.Calories, number(0, math.MaxFloat64, false)),
		validation.Field(&in.Protein, number(0, math.MaxFloat64, false)),
		validation.Field(&in.Fat, number(0, math.MaxFloat64, false)),
		validation.Field(&in.Carbohydrates, number(0, math.MaxFloat64, false)),
	}
	return rules
}

// ValidateCreate checks a create payload.
func ValidateCreate(in *models.RecipeInput) error {
	rules := append(fieldRules(in),
		validation.Field(&in.Title, validation.Required, validation.By(sluggable)))
	err := validation.ValidateStruct(in, rules...)
	if err == nil && !hasContent(in) {
		return apperr.Invalid("body", "provide at least one of: instructions, ingredients or link")
	}
	return apperr.FromValidation(err)
}

// ValidateUpdate checks an update payload.
func ValidateUpdate(in *models.RecipeInput) error {
	rules := append(fieldRules(in),
		validation.Field(&in.Title, validation.NilOrNotEmpty, validation.By(sluggable)))
	return apperr.FromValidation(validation.ValidateStruct(in, rules...))
}

func sluggable(v any) error {
	p, _ := v.(*string)
	if p == nil {
		return nil
	}
	if strings.TrimSpace(*p) == "" {
		return errors.New("cannot be blank")
	}
	slug := graph.Slug(*p)
	for _, r := range slug {
		if r < 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			return errors.New("contains characters not allowed in an id")
		}
	}
	return nil
}

func hasContent(in *models.RecipeInput) bool {
	for _, s := range in.Instructions {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	if len(in.Ingredients) > 0 {
		return true
	}
	return in.Link != nil && strings.TrimSpace(*in.Link) != ""
}
