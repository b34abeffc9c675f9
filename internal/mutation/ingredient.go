package mutation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/feinschmecker/internal/models"
)

// Ingredient is a parsed ingredient line.
type Ingredient struct {
	Text   string   // the full line, e.g. "200g flour"
	Amount *float64 // 200
	Unit   string   // "g"
	Name   string   // base ingredient, "flour"
}

var leadingAmount = regexp.MustCompile(`^\s*(\d+\s*/\s*\d+|\d+(?:[.,]\d+)?)\s*(.*)$`)

var units = map[string]bool{
	"g": true, "gr": true, "gram": true, "grams": true, "kg": true, "mg": true,
	"ml": true, "cl": true, "dl": true, "l": true, "liter": true, "liters": true, "litre": true, "litres": true,
	"tsp": true, "teaspoon": true, "teaspoons": true, "tbsp": true, "tablespoon": true, "tablespoons": true,
	"cup": true, "cups": true, "oz": true, "ounce": true, "ounces": true, "lb": true, "lbs": true,
	"pound": true, "pounds": true, "pinch": true, "pinches": true, "dash": true, "clove": true, "cloves": true,
	"can": true, "cans": true, "slice": true, "slices": true, "stick": true, "sticks": true,
}

// ParseIngredient splits a free-text ingredient line into amount, unit and
// base ingredient name. A line without a recognizable name uses the whole
// text as the name.
func ParseIngredient(text string) Ingredient {
	text = strings.TrimSpace(text)
	out := Ingredient{Text: text, Name: text}
	rest := text
	if m := leadingAmount.FindStringSubmatch(text); m != nil {
		if f, ok := parseAmount(m[1]); ok {
			out.Amount = &f
			rest = m[2]
		}
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 && out.Amount != nil {
		if u := strings.TrimSuffix(strings.ToLower(fields[0]), "."); units[u] {
			out.Unit = u
			fields = fields[1:]
		}
	}
	if len(fields) > 0 && strings.EqualFold(fields[0], "of") && out.Unit != "" {
		fields = fields[1:]
	}
	if name := strings.Join(fields, " "); name != "" {
		out.Name = name
	}
	return out
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return f, err == nil
}

// resolveIngredient merges an explicit payload entry with what can be
// parsed from its text.
func resolveIngredient(in models.IngredientInput) Ingredient {
	parsed := ParseIngredient(in.Text)
	if in.Text == "" {
		parsed = Ingredient{Name: strings.TrimSpace(in.Ingredient)}
	}
	if in.Amount != nil {
		a := *in.Amount
		parsed.Amount = &a
	}
	if in.Unit != "" {
		parsed.Unit = strings.TrimSpace(in.Unit)
	}
	if in.Ingredient != "" {
		parsed.Name = strings.TrimSpace(in.Ingredient)
	}
	if parsed.Text == "" {
		parsed.Text = composeText(parsed)
	}
	return parsed
}

func composeText(in Ingredient) string {
	var parts []string
	if in.Amount != nil {
		parts = append(parts, strconv.FormatFloat(*in.Amount, 'f', -1, 64)+in.Unit)
	} else if in.Unit != "" {
		parts = append(parts, in.Unit)
	}
	parts = append(parts, in.Name)
	return strings.Join(parts, " ")
}
