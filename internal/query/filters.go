// Package query turns the search filter vocabulary into graph queries.
package query

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/models"
)

// Range is an exclusive numeric interval. Nil bounds are open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Filters is a validated, typed filter set.
type Filters struct {
	Ingredients []string         `json:"ingredients,omitempty"`
	Vegan       *bool            `json:"vegan,omitempty"`
	Vegetarian  *bool            `json:"vegetarian,omitempty"`
	MealType    string           `json:"meal_type,omitempty"`
	Time        *int             `json:"time,omitempty"`
	Difficulty  *int             `json:"difficulty,omitempty"`
	Nutrients   map[string]Range `json:"nutrients,omitempty"`
}

// Request is a filter set plus the requested page.
type Request struct {
	Filters Filters `json:"filters"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// Limit returns the LIMIT for the request.
func (r Request) Limit() int { return r.PerPage }

// Offset returns the OFFSET for the request.
func (r Request) Offset() int { return (r.Page - 1) * r.PerPage }

// Key returns a canonical encoding of the request, stable across equal inputs.
func (r Request) Key() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// PageLimits bounds pagination.
type PageLimits struct {
	Default int
	Max     int
}

// Parse validates query-string values into a Request. Errors are
// *apperr.ValidationError with one entry per offending key.
func Parse(values url.Values, limits PageLimits) (Request, error) {
	errs := validation.Errors{}
	req := Request{Page: 1, PerPage: limits.Default}

	intParam := func(key string, rules ...validation.Rule) *int {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs[key] = validation.NewError("validation_is_int", "must be an integer")
			return nil
		}
		if err := validation.Validate(n, rules...); err != nil {
			errs[key] = err
			return nil
		}
		return &n
	}
	floatParam := func(key string) *float64 {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs[key] = validation.NewError("validation_is_float", "must be a number")
			return nil
		}
		if err := validation.Validate(f, validation.Min(0.0)); err != nil {
			errs[key] = err
			return nil
		}
		return &f
	}
	boolParam := func(key string) *bool {
		raw := strings.ToLower(strings.TrimSpace(values.Get(key)))
		if raw == "" {
			return nil
		}
		switch raw {
		case "true", "1", "yes", "false", "0", "no":
			b := models.ParseBool(raw)
			return &b
		}
		errs[key] = validation.NewError("validation_is_bool", "must be true or false")
		return nil
	}

	if p := intParam("page", validation.Min(1)); p != nil {
		req.Page = *p
	}
	if p := intParam("per_page", validation.Min(1), validation.Max(limits.Max)); p != nil {
		req.PerPage = *p
	}

	f := &req.Filters
	f.Ingredients = parseList(values["ingredients"])
	f.Vegan = boolParam("vegan")
	f.Vegetarian = boolParam("vegetarian")
	if raw := strings.TrimSpace(values.Get("meal_type")); raw != "" {
		if mt, ok := CanonicalMealType(raw); ok {
			f.MealType = mt
		} else {
			errs["meal_type"] = validation.NewError("validation_in_invalid",
				"must be one of "+strings.Join(graph.MealTypes, ", "))
		}
	}
	f.Time = intParam("time", validation.Min(1))
	f.Difficulty = intParam("difficulty", validation.Min(graph.MinDifficulty), validation.Max(graph.MaxDifficulty))

	for _, n := range graph.Nutrients {
		var r Range
		// bigger/smaller take precedence over min/max.
		lower := floatParam(n.Key + "_bigger")
		if lo := floatParam(n.Key + "_min"); lower == nil {
			lower = lo
		}
		upper := floatParam(n.Key + "_smaller")
		if hi := floatParam(n.Key + "_max"); upper == nil {
			upper = hi
		}
		r.Min, r.Max = lower, upper
		if r.Min != nil || r.Max != nil {
			if f.Nutrients == nil {
				f.Nutrients = make(map[string]Range)
			}
			f.Nutrients[n.Key] = r
		}
	}

	if len(errs) > 0 {
		return Request{}, apperr.FromValidation(errs)
	}
	return req, nil
}

// CanonicalMealType matches s case-insensitively against the meal type
// enumeration and returns the canonical spelling.
func CanonicalMealType(s string) (string, bool) {
	for _, mt := range graph.MealTypes {
		if strings.EqualFold(mt, strings.TrimSpace(s)) {
			return mt, true
		}
	}
	return "", false
}

// parseList accepts repeated keys, comma-separated values and JSON arrays.
func parseList(raw []string) []string {
	var out []string
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "[") {
			var items []string
			if err := json.Unmarshal([]byte(v), &items); err == nil {
				for _, it := range items {
					if it = strings.TrimSpace(it); it != "" {
						out = append(out, it)
					}
				}
				continue
			}
		}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
