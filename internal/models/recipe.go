// Package models defines the domain types for Feinschmecker.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Recipe is the normalized search and read record.
type Recipe struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Link          string   `json:"link"`
	ImageLink     string   `json:"image_link"`
	Instructions  []string `json:"instructions"`
	Ingredients   []string `json:"ingredients"`
	Vegan         bool     `json:"vegan"`
	Vegetarian    bool     `json:"vegetarian"`
	MealType      string   `json:"meal_type,omitempty"`
	Time          float64  `json:"time"`
	Difficulty    float64  `json:"difficulty"`
	Calories      float64  `json:"calories"`
	Protein       float64  `json:"protein"`
	Fat           float64  `json:"fat"`
	Carbohydrates float64  `json:"carbohydrates"`
	Author        string   `json:"author"`
	SourceName    string   `json:"source_name"`
	SourceLink    string   `json:"source_link"`
}

// SearchPage is the payload of a successful search.
type SearchPage struct {
	Recipes []Recipe `json:"recipes"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
	Total   int      `json:"total"`
}

// TotalPages returns the page count for the current page size.
func (p SearchPage) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// RecipeInput is a create or update payload. Nil fields are absent.
type RecipeInput struct {
	Title         *string           `json:"title,omitempty" yaml:"title,omitempty"`
	Instructions  Instructions      `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Ingredients   []IngredientInput `json:"ingredients,omitempty" yaml:"ingredients,omitempty"`
	Time          *FlexFloat        `json:"time,omitempty" yaml:"time,omitempty"`
	Difficulty    *FlexFloat        `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	MealType      *string           `json:"meal_type,omitempty" yaml:"meal_type,omitempty"`
	Vegan         *FlexBool         `json:"vegan,omitempty" yaml:"vegan,omitempty"`
	Vegetarian    *FlexBool         `json:"vegetarian,omitempty" yaml:"vegetarian,omitempty"`
	Calories      *FlexFloat        `json:"calories,omitempty" yaml:"calories,omitempty"`
	Protein       *FlexFloat        `json:"protein,omitempty" yaml:"protein,omitempty"`
	Fat           *FlexFloat        `json:"fat,omitempty" yaml:"fat,omitempty"`
	Carbohydrates *FlexFloat        `json:"carbohydrates,omitempty" yaml:"carbohydrates,omitempty"`
	Author        *string           `json:"author,omitempty" yaml:"author,omitempty"`
	SourceName    *string           `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	SourceLink    *string           `json:"source_link,omitempty" yaml:"source_link,omitempty"`
	Link          *string           `json:"link,omitempty" yaml:"link,omitempty"`
	ImageLink     *string           `json:"image_link,omitempty" yaml:"image_link,omitempty"`
}

// IngredientInput is one ingredient entry. It decodes from either a plain
// string ("200g flour") or an object with explicit parts.
type IngredientInput struct {
	Text       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Amount     *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	Unit       string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Ingredient string   `json:"ingredient,omitempty" yaml:"ingredient,omitempty"`
}

func (in *IngredientInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = IngredientInput{Text: s}
		return nil
	}
	type plain IngredientInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*in = IngredientInput(p)
	return nil
}

// Instructions is an ordered list of steps. A bare JSON string decodes to a
// single step.
type Instructions []string

func (s *Instructions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = Instructions{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("instructions must be a string or a list of strings")
	}
	if many == nil {
		many = []string{}
	}
	*s = many
	return nil
}

// FlexBool accepts JSON booleans, numbers and strings ("true", "1", "yes").
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
	case float64:
		*b = t != 0
	case string:
		*b = FlexBool(ParseBool(t))
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// FlexFloat accepts JSON numbers and numeric strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*f = FlexFloat(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", t)
		}
		*f = FlexFloat(n)
	default:
		return fmt.Errorf("invalid number %s", data)
	}
	return nil
}

// ParseBool reports whether s is one of "true", "1", "yes" (any case).
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Float returns a pointer to f as a FlexFloat.
func Float(f float64) *FlexFloat { v := FlexFloat(f); return &v }

// Bool returns a pointer to b as a FlexBool.
func Bool(b bool) *FlexBool { v := FlexBool(b); return &v }
