package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/feinschmecker/internal/graph"
)

// Separator joins the aggregated ingredient names of one recipe.
const Separator = "#"

// Columns is the projection order of the result query.
var Columns = []string{
	"id", "name", "link", "image_link", "instructions", "ingredients",
	"vegan", "vegetarian", "meal_type", "time", "difficulty",
	"calories", "protein", "fat", "carbohydrates",
	"author", "source_name", "source_link",
}

type builder struct {
	joins []string
	where []string
	args  []any
}

// link joins alias as (subject prop ?alias.o).
func (b *builder) link(alias, subject, prop string) {
	b.joins = append(b.joins, fmt.Sprintf(
		"JOIN triples %[1]s ON %[1]s.s = %[2]s AND %[1]s.p = '%[3]s'", alias, subject, prop))
}

func (b *builder) optional(alias, subject, prop string) {
	b.joins = append(b.joins, fmt.Sprintf(
		"LEFT JOIN triples %[1]s ON %[1]s.s = %[2]s AND %[1]s.p = '%[3]s'", alias, subject, prop))
}

func (b *builder) filter(cond string, args ...any) {
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
}

// Compile translates a filter set into a paged, grouped result query and a
// count query over the same body. A negative limit disables paging.
func Compile(f Filters, limit, offset int) (result, count graph.Query) {
	b := &builder{}
	b.filter(fmt.Sprintf("r.p = '%s' AND r.o = '%s'", graph.TypePredicate, graph.ClassRecipe))

	// Mandatory skeleton.
	b.link("lk", "r.s", graph.PropHasLink)
	b.link("img", "r.s", graph.PropHasImageLink)
	b.link("nm", "r.s", graph.PropRecipeName)
	b.link("ins", "r.s", graph.PropHasInstructions)
	b.link("hi", "r.s", graph.PropHasIngredient)
	b.link("iwn", "hi.o", graph.PropIngredientText)

	for i, sub := range f.Ingredients {
		b.ingredient(strings.Repeat("a", i+1), sub)
	}

	b.link("vg", "r.s", graph.PropIsVegan)
	if f.Vegan != nil {
		b.filter("lower(vg.o) = ?", fmt.Sprint(*f.Vegan))
	}
	b.link("vt", "r.s", graph.PropIsVegetarian)
	if f.Vegetarian != nil {
		b.filter("lower(vt.o) = ?", fmt.Sprint(*f.Vegetarian))
	}

	if f.MealType != "" {
		b.link("mt", "r.s", graph.PropIsMealType)
		b.link("mtn", "mt.o", graph.PropMealTypeName)
		b.filter("mtn.o = ?", f.MealType)
	} else {
		b.optional("mt", "r.s", graph.PropIsMealType)
		b.optional("mtn", "mt.o", graph.PropMealTypeName)
	}

	b.link("rt", "r.s", graph.PropRequiresTime)
	b.link("tm", "rt.o", graph.PropAmountOfTime)
	if f.Time != nil {
		b.filter("tm.o < ?", *f.Time)
	}
	b.link("hd", "r.s", graph.PropHasDifficulty)
	b.link("df", "hd.o", graph.PropNumericDifficulty)
	if f.Difficulty != nil {
		b.filter("df.o = ?", *f.Difficulty)
	}

	nutrientCols := make([]string, 0, len(graph.Nutrients))
	for _, n := range graph.Nutrients {
		has, amount := "h_"+n.Key, "a_"+n.Key
		b.link(has, "r.s", n.Has)
		b.link(amount, has+".o", n.Amount)
		nutrientCols = append(nutrientCols, amount+".o")
		if r, ok := f.Nutrients[n.Key]; ok {
			if r.Min != nil {
				b.filter(amount+".o > ?", *r.Min)
			}
			if r.Max != nil {
				b.filter(amount+".o < ?", *r.Max)
			}
		}
	}

	b.link("ab", "r.s", graph.PropAuthoredBy)
	b.link("an", "ab.o", graph.PropAuthorName)
	b.link("src", "ab.o", graph.PropIsAuthorOf)
	b.link("sn", "src.o", graph.PropSourceName)
	b.link("sw", "src.o", graph.PropIsWebsite)

	scalars := []string{"nm.o", "lk.o", "img.o", "ins.o", "vg.o", "vt.o", "mtn.o", "tm.o", "df.o"}
	scalars = append(scalars, nutrientCols...)
	scalars = append(scalars, "an.o", "sn.o", "sw.o")

	body := "FROM triples r\n" + strings.Join(b.joins, "\n") + "\nWHERE " + strings.Join(b.where, "\n  AND ")

	projection := []string{"r.s", "nm.o", "lk.o", "img.o", "ins.o",
		"group_concat(iwn.o, '" + Separator + "' ORDER BY hi.seq)",
		"vg.o", "vt.o", "mtn.o", "tm.o", "df.o"}
	projection = append(projection, nutrientCols...)
	projection = append(projection, "an.o", "sn.o", "sw.o")

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\nGROUP BY r.s, ")
	sb.WriteString(strings.Join(scalars, ", "))
	sb.WriteString("\nORDER BY nm.o, r.s")
	resultArgs := append([]any(nil), b.args...)
	if limit >= 0 {
		sb.WriteString("\nLIMIT ? OFFSET ?")
		resultArgs = append(resultArgs, limit, offset)
	}

	result = graph.Query{SQL: sb.String(), Args: resultArgs}
	count = graph.Query{
		SQL:  "SELECT COUNT(DISTINCT r.s)\n" + body,
		Args: append([]any(nil), b.args...),
	}
	return result, count
}

// ingredient adds a conjunctive, case-insensitive substring match against
// the canonical name of one of the recipe's ingredients.
func (b *builder) ingredient(suffix, sub string) {
	hi, ti, in := "hi_"+suffix, "ti_"+suffix, "in_"+suffix
	b.filter(fmt.Sprintf(`EXISTS (SELECT 1 FROM triples %[1]s
    JOIN triples %[2]s ON %[2]s.s = %[1]s.o AND %[2]s.p = '%[4]s'
    JOIN triples %[3]s ON %[3]s.s = %[2]s.o AND %[3]s.p = '%[5]s'
    WHERE %[1]s.s = r.s AND %[1]s.p = '%[6]s' AND regexp(?, %[3]s.o))`,
		hi, ti, in, graph.PropTypeOfIngredient, graph.PropIngredientName, graph.PropHasIngredient),
		"(?i)"+regexp.QuoteMeta(sub))
}
