// Package graph implements the recipe knowledge graph: a typed triple store
// held in a process-local SQLite database and persisted as N-Triples.
package graph

// Namespace is the IRI prefix of every class, property and individual.
const Namespace = "https://jaron.sprute.com/uni/actionable-knowledge-representation/feinschmecker/"

// TypePredicate is the predicate linking an individual to its class.
const TypePredicate = "type"

// Classes.
const (
	ClassRecipe               = "Recipe"
	ClassIngredient           = "Ingredient"
	ClassIngredientWithAmount = "IngredientWithAmount"
	ClassTime                 = "Time"
	ClassDifficulty           = "Difficulty"
	ClassMealType             = "MealType"
	ClassCalories             = "Calories"
	ClassProtein              = "Protein"
	ClassFat                  = "Fat"
	ClassCarbohydrates        = "Carbohydrates"
	ClassAuthor               = "Author"
	ClassSource               = "Source"
)

// Properties.
const (
	PropHasIngredient     = "has_ingredient"
	PropTypeOfIngredient  = "type_of_ingredient"
	PropIngredientName    = "has_ingredient_name"
	PropIngredientText    = "has_ingredient_with_amount_name"
	PropIngredientAmount  = "amount_of_ingredient"
	PropIngredientUnit    = "unit_of_ingredient"
	PropIsVegan           = "is_vegan"
	PropIsVegetarian      = "is_vegetarian"
	PropIsMealType        = "is_meal_type"
	PropMealTypeName      = "has_meal_type_name"
	PropRequiresTime      = "requires_time"
	PropAmountOfTime      = "amount_of_time"
	PropHasDifficulty     = "has_difficulty"
	PropNumericDifficulty = "has_numeric_difficulty"
	PropHasLink           = "has_link"
	PropHasImageLink      = "has_image_link"
	PropRecipeName        = "has_recipe_name"
	PropHasInstructions   = "has_instructions"
	PropAuthoredBy        = "authored_by"
	PropAuthorName        = "has_author_name"
	PropIsAuthorOf        = "is_author_of"
	PropSourceName        = "has_source_name"
	PropIsWebsite         = "is_website"
)

// Nutrient describes one of the four nutrient dimensions.
type Nutrient struct {
	Key    string // filter and payload key, e.g. "calories"
	Class  string // entity class, e.g. "Calories"
	Has    string // recipe -> nutrient entity
	Amount string // nutrient entity -> numeric literal
}

// Nutrients lists the nutrient dimensions in projection order.
var Nutrients = []Nutrient{
	{Key: "calories", Class: ClassCalories, Has: "has_calories", Amount: "amount_of_calories"},
	{Key: "protein", Class: ClassProtein, Has: "has_protein", Amount: "amount_of_protein"},
	{Key: "fat", Class: ClassFat, Has: "has_fat", Amount: "amount_of_fat"},
	{Key: "carbohydrates", Class: ClassCarbohydrates, Has: "has_carbohydrates", Amount: "amount_of_carbohydrates"},
}

// MealTypes is the conventional meal type enumeration. The store itself
// accepts any name.
var MealTypes = []string{"Breakfast", "Lunch", "Dinner"}

// Difficulty bounds.
const (
	MinDifficulty = 1
	MaxDifficulty = 3
)
