// Package recipes shapes graph rows into recipe records and serves the read
// side of the API: filtered search and single-recipe lookup.
package recipes

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/query"
)

var (
	stepMarker = regexp.MustCompile(`(?i)^\s*step\s*\d+\s*[:.)-]?\s*`)
	// "1. " or "2) " list numbering; "1.5 l" is a quantity and stays.
	listMarker = regexp.MustCompile(`^\s*\d+[.)]\s+`)
)

// Normalize maps result rows, positioned as query.Columns, into records.
// Short rows leave the missing fields at their zero value.
func Normalize(rows [][]any) []models.Recipe {
	out := make([]models.Recipe, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalizeRow(row))
	}
	return out
}

func normalizeRow(row []any) models.Recipe {
	var r models.Recipe
	for i, col := range query.Columns {
		if i >= len(row) {
			break
		}
		v := text(row[i])
		switch col {
		case "id":
			r.ID = v
		case "name":
			r.Name = v
		case "link":
			r.Link = v
		case "image_link":
			r.ImageLink = v
		case "instructions":
			r.Instructions = ParseInstructions(v)
		case "ingredients":
			r.Ingredients = splitList(v)
		case "vegan":
			r.Vegan = models.ParseBool(v)
		case "vegetarian":
			r.Vegetarian = models.ParseBool(v)
		case "meal_type":
			r.MealType = v
		case "time":
			r.Time = number(v)
		case "difficulty":
			r.Difficulty = number(v)
		case "calories":
			r.Calories = number(v)
		case "protein":
			r.Protein = number(v)
		case "fat":
			r.Fat = number(v)
		case "carbohydrates":
			r.Carbohydrates = number(v)
		case "author":
			r.Author = v
		case "source_name":
			r.SourceName = v
		case "source_link":
			r.SourceLink = v
		}
	}
	return r
}

// ParseInstructions reads a stored instruction list. Values are JSON arrays;
// older data holds a bracketed, quoted list separated by "', '". Leading
// "Step N" markers are stripped from every step.
func ParseInstructions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var steps []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &steps) == nil {
		return cleanSteps(steps)
	}
	if strings.HasPrefix(raw, "[") {
		inner := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		inner = strings.Trim(strings.TrimSpace(inner), `'"`)
		inner = strings.ReplaceAll(inner, `", "`, `', '`)
		return cleanSteps(strings.Split(inner, "', '"))
	}
	return cleanSteps([]string{raw})
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		s = strings.TrimSpace(trimStepMarker(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimStepMarker(s string) string {
	if loc := stepMarker.FindStringIndex(s); loc != nil {
		return s[loc[1]:]
	}
	if loc := listMarker.FindStringIndex(s); loc != nil {
		rest := s[loc[1]:]
		if rest != "" && (rest[0] < '0' || rest[0] > '9') {
			return rest
		}
	}
	return s
}

func splitList(v string) []string {
	if v == "" {
		return []string{}
	}
	parts := strings.Split(v, query.Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func number(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
