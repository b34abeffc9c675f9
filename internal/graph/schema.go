package graph

// Kind tells whether a property points at another entity or holds a literal.
type Kind int

const (
	KindLiteral Kind = iota
	KindRef
)

// PropertyDesc describes one property an entity class may carry.
type PropertyDesc struct {
	Name       string
	Kind       Kind
	Functional bool
}

// ClassDesc lists the optional properties of one class.
type ClassDesc struct {
	Name  string
	props map[string]PropertyDesc
}

// Property returns the descriptor of name and whether the class declares it.
func (c *ClassDesc) Property(name string) (PropertyDesc, bool) {
	p, ok := c.props[name]
	return p, ok
}

// Has reports whether the class declares the property.
func (c *ClassDesc) Has(name string) bool {
	_, ok := c.props[name]
	return ok
}

// Schema maps class names to descriptors.
type Schema map[string]*ClassDesc

// Class returns the descriptor for name, or nil.
func (s Schema) Class(name string) *ClassDesc {
	return s[name]
}

func class(name string, props ...PropertyDesc) *ClassDesc {
	c := &ClassDesc{Name: name, props: make(map[string]PropertyDesc, len(props))}
	for _, p := range props {
		c.props[p.Name] = p
	}
	return c
}

func literal(name string) PropertyDesc {
	return PropertyDesc{Name: name, Kind: KindLiteral, Functional: true}
}
func ref(name string) PropertyDesc  { return PropertyDesc{Name: name, Kind: KindRef, Functional: true} }
func refs(name string) PropertyDesc { return PropertyDesc{Name: name, Kind: KindRef} }

// RecipeSchema is the schema of the recipe graph.
var RecipeSchema = buildSchema()

func buildSchema() Schema {
	recipe := []PropertyDesc{
		literal(PropRecipeName),
		literal(PropHasInstructions),
		literal(PropHasLink),
		literal(PropHasImageLink),
		literal(PropIsVegan),
		literal(PropIsVegetarian),
		refs(PropHasIngredient),
		ref(PropRequiresTime),
		ref(PropHasDifficulty),
		ref(PropIsMealType),
		ref(PropAuthoredBy),
	}
	s := Schema{
		ClassIngredient: class(ClassIngredient, literal(PropIngredientName)),
		ClassIngredientWithAmount: class(ClassIngredientWithAmount,
			literal(PropIngredientText),
			literal(PropIngredientAmount),
			literal(PropIngredientUnit),
			ref(PropTypeOfIngredient),
		),
		ClassTime:       class(ClassTime, literal(PropAmountOfTime)),
		ClassDifficulty: class(ClassDifficulty, literal(PropNumericDifficulty)),
		ClassMealType:   class(ClassMealType, literal(PropMealTypeName)),
		ClassAuthor:     class(ClassAuthor, literal(PropAuthorName), ref(PropIsAuthorOf)),
		ClassSource:     class(ClassSource, literal(PropSourceName), literal(PropIsWebsite)),
	}
	for _, n := range Nutrients {
		recipe = append(recipe, ref(n.Has))
		s[n.Class] = class(n.Class, literal(n.Amount))
	}
	s[ClassRecipe] = class(ClassRecipe, recipe...)
	return s
}
