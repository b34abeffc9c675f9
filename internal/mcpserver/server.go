// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Feinschmecker recipe tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
)

const contractURI = "feinschmecker://recipe-format"

// Server wraps the MCP server with recipe tools.
type Server struct {
	mcp     *server.MCPServer
	recipes *recipes.Service
	engine  *mutation.Engine
	limits  query.PageLimits
}

// New creates a new MCP server with all recipe tools registered.
func New(svc *recipes.Service, eng *mutation.Engine, limits query.PageLimits) *Server {
	if limits.Default <= 0 {
		limits.Default = 20
	}
	if limits.Max <= 0 {
		limits.Max = 100
	}
	s := &Server{recipes: svc, engine: eng, limits: limits}

	s.mcp = server.NewMCPServer(
		"Feinschmecker",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_recipes",
		mcp.WithDescription("Search recipes by ingredients, diet, meal type, time, difficulty and nutrient ranges. "+
			"All arguments are optional; see get_recipe_contract for the filter vocabulary."),
		mcp.WithString("ingredients", mcp.Description("Comma separated ingredient names that must all appear")),
		mcp.WithBoolean("vegan", mcp.Description("Only vegan recipes")),
		mcp.WithBoolean("vegetarian", mcp.Description("Only vegetarian recipes")),
		mcp.WithString("meal_type", mcp.Description("Breakfast, Lunch or Dinner")),
		mcp.WithNumber("time", mcp.Description("Maximum preparation time in minutes")),
		mcp.WithNumber("difficulty", mcp.Description("1 (easy) to 3 (hard)")),
		mcp.WithNumber("calories_min", mcp.Description("Exclusive lower calorie bound")),
		mcp.WithNumber("calories_max", mcp.Description("Exclusive upper calorie bound")),
		mcp.WithNumber("protein_min", mcp.Description("Exclusive lower protein bound")),
		mcp.WithNumber("protein_max", mcp.Description("Exclusive upper protein bound")),
		mcp.WithNumber("page", mcp.Description("Page number, default 1")),
		mcp.WithNumber("per_page", mcp.Description("Page size, default 20")),
	), s.searchRecipes)

	s.mcp.AddTool(mcp.NewTool("get_recipe",
		mcp.WithDescription("Read a single recipe by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id (e.g. pancakes)")),
	), s.getRecipe)

	s.mcp.AddTool(mcp.NewTool("create_recipe",
		mcp.WithDescription("Create a recipe. The recipe argument MUST follow the recipe contract; "+
			"read it first via get_recipe_contract or the "+contractURI+" resource."),
		mcp.WithObject("recipe", mcp.Required(), mcp.Description("Recipe object following the contract")),
	), s.createRecipe)

	s.mcp.AddTool(mcp.NewTool("update_recipe",
		mcp.WithDescription("Update the fields present in recipe. List fields are replaced."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id")),
		mcp.WithObject("recipe", mcp.Required(), mcp.Description("Fields to change")),
	), s.updateRecipe)

	s.mcp.AddTool(mcp.NewTool("delete_recipe",
		mcp.WithDescription("Delete a recipe and any values no other recipe uses."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Recipe id")),
	), s.deleteRecipe)

	s.mcp.AddTool(mcp.NewTool("get_recipe_contract",
		mcp.WithDescription("Returns the recipe payload and search filter contract. "+
			"Call this before creating or updating recipes."),
	), s.getRecipeContract)

	// Resource: recipe contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Recipe Contract",
			mcp.WithResourceDescription("Recipe payload fields and search filters."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchRecipes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	values := url.Values{}
	for k, v := range req.GetArguments() {
		switch v := v.(type) {
		case string:
			values.Set(k, v)
		case bool:
			values.Set(k, strconv.FormatBool(v))
		case float64:
			values.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		case []any:
			for _, item := range v {
				values.Add(k, fmt.Sprint(item))
			}
		}
	}
	q, err := query.Parse(values, s.limits)
	if err != nil {
		return toolError(err), nil
	}
	page, err := s.recipes.Search(ctx, q)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(page), nil
}

func (s *Server) getRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.recipes.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) createRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := recipeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.engine.Create(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", id)), nil
}

func (s *Server) updateRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := recipeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.Update(ctx, id, in); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) deleteRecipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.Delete(ctx, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getRecipeContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecipeContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     RecipeContract,
		},
	}, nil
}

// recipeArg decodes the recipe argument, given either as an object or as a
// JSON string.
func recipeArg(req mcp.CallToolRequest) (models.RecipeInput, error) {
	var in models.RecipeInput
	raw, ok := req.GetArguments()["recipe"]
	if !ok {
		return in, errors.New(`required argument "recipe" not found`)
	}
	var data []byte
	if s, isString := raw.(string); isString {
		data = []byte(s)
	} else {
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return in, err
		}
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid recipe: %w", err)
	}
	return in, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("recipe not found")
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("a recipe with this title already exists")
	}
	return mcp.NewToolResultError(err.Error())
}
