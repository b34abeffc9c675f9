package mcpserver

// RecipeContract describes the recipe payload accepted by create_recipe
// and update_recipe, and the filters accepted by search_recipes.
const RecipeContract = `# Feinschmecker Recipe Contract

Recipes are created from a JSON object. Only ` + "`" + `title` + "`" + ` is required on create,
together with at least one of ` + "`" + `instructions` + "`" + `, ` + "`" + `ingredients` + "`" + ` or ` + "`" + `link` + "`" + `.
On update every field is optional; absent fields keep their value and list
fields (ingredients, instructions) are replaced, never merged.

## Fields

| Field | Type | Notes |
|---|---|---|
| title | string | Display name. The recipe id is the lower-cased title with spaces as underscores. |
| instructions | string or list of strings | A single string is stored as one step. |
| ingredients | list | Each entry is a string ("200g flour", "2 eggs") or an object {"amount": 200, "unit": "g", "ingredient": "flour"}. |
| time | integer | Minutes, at least 0. |
| difficulty | integer | 1 (easy) to 3 (hard). |
| meal_type | string | Breakfast, Lunch or Dinner. |
| vegan, vegetarian | boolean | Strings "true"/"false" are accepted. |
| calories, protein, fat, carbohydrates | number | At least 0. |
| author, source_name, source_link, link, image_link | string | |

## Search filters

` + "`" + `ingredients` + "`" + ` (comma separated, all must match), ` + "`" + `vegan` + "`" + `, ` + "`" + `vegetarian` + "`" + `,
` + "`" + `meal_type` + "`" + `, ` + "`" + `time` + "`" + ` (maximum minutes), ` + "`" + `difficulty` + "`" + `,
` + "`" + `{calories|protein|fat|carbohydrates}_{min|max|bigger|smaller}` + "`" + ` (exclusive bounds,
bigger/smaller win over min/max),
` + "`" + `page` + "`" + ` and ` + "`" + `per_page` + "`" + ` (1 to 100, default 20).

## Example

` + "```" + `json
{
  "title": "Pancakes",
  "instructions": "Mix. Fry.",
  "ingredients": ["2 eggs", "200g flour"],
  "time": 15,
  "difficulty": 1,
  "vegetarian": true,
  "calories": 350,
  "author": "Alice"
}
` + "```" + `
`
