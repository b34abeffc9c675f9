package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
	"github.com/starford/feinschmecker/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	source := recipes.StoreSource{Store: testutil.TestStore(t)}
	svc := recipes.NewService(source, nil, nil)
	eng := mutation.NewEngine(source, mutation.WithPlaceholders(true))
	return New(svc, eng, query.PageLimits{})
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_recipes":
		result, err = srv.searchRecipes(ctx, req)
	case "get_recipe":
		result, err = srv.getRecipe(ctx, req)
	case "create_recipe":
		result, err = srv.createRecipe(ctx, req)
	case "update_recipe":
		result, err = srv.updateRecipe(ctx, req)
	case "delete_recipe":
		result, err = srv.deleteRecipe(ctx, req)
	case "get_recipe_contract":
		result, err = srv.getRecipeContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func pancakes() map[string]interface{} {
	return map[string]interface{}{
		"title":        "Pancakes",
		"instructions": []interface{}{"Mix.", "Fry."},
		"ingredients":  []interface{}{"2 eggs", map[string]interface{}{"amount": 200.0, "unit": "g", "ingredient": "flour"}},
		"time":         15.0,
		"vegetarian":   true,
	}
}

func TestCreateAndGetRecipe(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_recipe", map[string]interface{}{"recipe": pancakes()})
	if text := resultText(r); text != "created: pancakes" {
		t.Fatalf("create result = %q", text)
	}

	r = callTool(t, srv, "get_recipe", map[string]interface{}{"id": "pancakes"})
	if r.IsError {
		t.Fatalf("get failed: %s", resultText(r))
	}
	var rec models.Recipe
	if err := json.Unmarshal([]byte(resultText(r)), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Name != "Pancakes" || rec.Time != 15 || !rec.Vegetarian {
		t.Errorf("recipe = %+v", rec)
	}
	if strings.Join(rec.Ingredients, "|") != "2 eggs|200g flour" {
		t.Errorf("ingredients = %v", rec.Ingredients)
	}

	r = callTool(t, srv, "create_recipe", map[string]interface{}{"recipe": pancakes()})
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate create = %q", resultText(r))
	}
}

func TestCreateFromJSONString(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_recipe", map[string]interface{}{
		"recipe": `{"title":"Tea","instructions":"Steep."}`,
	})
	if text := resultText(r); text != "created: tea" {
		t.Errorf("create result = %q", text)
	}
}

func TestSearchRecipes(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_recipe", map[string]interface{}{"recipe": pancakes()})

	r := callTool(t, srv, "search_recipes", map[string]interface{}{
		"ingredients": "egg",
		"time":        20.0,
		"vegetarian":  true,
	})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}
	var page models.SearchPage
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Recipes) != 1 || page.Recipes[0].ID != "pancakes" {
		t.Errorf("page = %+v", page)
	}

	r = callTool(t, srv, "search_recipes", map[string]interface{}{"meal_type": "Brunch"})
	if !r.IsError || !strings.Contains(resultText(r), "meal_type") {
		t.Errorf("invalid filter = %q", resultText(r))
	}
}

func TestUpdateAndDeleteRecipe(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_recipe", map[string]interface{}{"recipe": pancakes()})

	r := callTool(t, srv, "update_recipe", map[string]interface{}{
		"id":     "pancakes",
		"recipe": map[string]interface{}{"time": 25.0},
	})
	if text := resultText(r); text != "updated: pancakes" {
		t.Fatalf("update result = %q", text)
	}

	r = callTool(t, srv, "delete_recipe", map[string]interface{}{"id": "pancakes"})
	if text := resultText(r); text != "deleted: pancakes" {
		t.Fatalf("delete result = %q", text)
	}

	r = callTool(t, srv, "get_recipe", map[string]interface{}{"id": "pancakes"})
	if !r.IsError || resultText(r) != "recipe not found" {
		t.Errorf("get deleted = %q", resultText(r))
	}
}

func TestCreateValidation(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_recipe", map[string]interface{}{
		"recipe": map[string]interface{}{"title": "Soup", "instructions": "Boil.", "difficulty": 9.0},
	})
	if !r.IsError || !strings.Contains(resultText(r), "difficulty") {
		t.Errorf("invalid create = %q", resultText(r))
	}

	r = callTool(t, srv, "create_recipe", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing recipe argument")
	}
}

func TestGetRecipeContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_recipe_contract", nil)
	if !strings.Contains(resultText(r), "Feinschmecker Recipe Contract") {
		t.Error("contract text missing")
	}
}
