package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
	"github.com/starford/feinschmecker/internal/respcache"
	"github.com/starford/feinschmecker/internal/tasks"
)

const maxBody = 10 << 20

var errNoDispatcher = errors.New("no task dispatcher configured")

// Handler holds API route handlers.
type Handler struct {
	recipes    *recipes.Service
	engine     *mutation.Engine
	dispatcher *tasks.Dispatcher
	cache      *respcache.Cache
	version    func(context.Context) int64
	limits     query.PageLimits
}

// NewHandler creates a new Handler from d.
func NewHandler(d Deps) *Handler {
	limits := d.Limits
	if limits.Default <= 0 {
		limits.Default = 20
	}
	if limits.Max <= 0 {
		limits.Max = 100
	}
	version := d.Version
	if version == nil {
		version = func(context.Context) int64 { return 0 }
	}
	return &Handler{
		recipes:    d.Recipes,
		engine:     d.Engine,
		dispatcher: d.Dispatcher,
		cache:      d.Cache,
		version:    version,
		limits:     limits,
	}
}

// SearchRecipes handles GET /recipes.
//
//	@Summary		Submit a filtered recipe search
//	@Description	Returns 202 with a task id to poll. When the task queue is unavailable the search runs inline and returns 200 with fallback set.
//	@Tags			recipes
//	@Produce		json
//	@Param			ingredients		query		string	false	"Comma separated ingredient names, all required"
//	@Param			vegan			query		bool	false	"Vegan only"
//	@Param			vegetarian		query		bool	false	"Vegetarian only"
//	@Param			meal_type		query		string	false	"Meal type"	Enums(Breakfast, Lunch, Dinner)
//	@Param			time			query		int		false	"Maximum preparation time in minutes"
//	@Param			difficulty		query		int		false	"Difficulty"	Enums(1, 2, 3)
//	@Param			calories_min	query		number	false	"Exclusive lower calorie bound"
//	@Param			calories_max	query		number	false	"Exclusive upper calorie bound"
//	@Param			page			query		int		false	"Page number"
//	@Param			per_page		query		int		false	"Page size"
//	@Success		202				{object}	Envelope{data=TaskAccepted}
//	@Success		200				{object}	Envelope{data=SearchResult}
//	@Failure		400				{object}	errResponse
//	@Failure		500				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes [get]
func (h *Handler) SearchRecipes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := query.Parse(r.URL.Query(), h.limits)
	if err != nil {
		writeError(w, r, "parse filters", err)
		return
	}

	version := h.version(ctx)
	if id, ok := h.cache.Lookup(version, req); ok && h.dispatcher != nil {
		st, err := h.dispatcher.Status(ctx, id)
		if err == nil && st.State != tasks.StateFailure {
			writeJSON(w, http.StatusAccepted, Envelope{Data: TaskAccepted{TaskID: id}, Message: "search submitted"})
			return
		}
		h.cache.Forget(version, req)
	}

	id, submitErr := h.submit(ctx, tasks.TaskSearch, req)
	if submitErr == nil {
		h.cache.Store(version, req, id)
		writeJSON(w, http.StatusAccepted, Envelope{Data: TaskAccepted{TaskID: id}, Message: "search submitted"})
		return
	}
	slog.Warn("search submit failed, running inline",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("error", submitErr.Error()))

	page, syncErr := h.recipes.Search(ctx, req)
	if syncErr != nil {
		logFailure(r, "search", syncErr)
		writeJSON(w, http.StatusInternalServerError, errorBody(CodeSearchFailed, "search failed", map[string]string{
			"submit": submitErr.Error(),
			"sync":   syncErr.Error(),
		}))
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Data:     SearchResult(page),
		Meta:     pageMeta(page),
		Fallback: true,
	})
}

// TaskStatus handles GET /recipes/tasks/{id}.
//
//	@Summary		Poll a task
//	@Description	Unknown ids report PENDING.
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task id"
//	@Success		200	{object}	Envelope{data=TaskStatus}
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/tasks/{id} [get]
func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(CodeUnavailable, "task queue unavailable", nil))
		return
	}
	res, err := h.dispatcher.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, "task status", err)
		return
	}
	env := Envelope{Data: taskStatus(res)}
	if res.Name == tasks.TaskSearch && res.State == tasks.StateSuccess {
		var page models.SearchPage
		if json.Unmarshal(res.Result, &page) == nil {
			env.Meta = pageMeta(page)
		}
	}
	writeJSON(w, http.StatusOK, env)
}

// GetRecipe handles GET /recipes/crud/{id}.
//
//	@Summary		Get a single recipe
//	@Tags			recipes
//	@Produce		json
//	@Param			id	path		string	true	"Recipe id"
//	@Success		200	{object}	Envelope{data=Recipe}
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/crud/{id} [get]
func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: rec})
}

// CreateRecipe handles POST /recipes/crud.
//
//	@Summary		Create a recipe
//	@Description	Runs inline unless async is true.
//	@Tags			recipes
//	@Accept			json
//	@Produce		json
//	@Param			async	query		bool		false	"Queue the create as a task"
//	@Param			body	body		RecipeInput	true	"Recipe to create"
//	@Success		200		{object}	Envelope{data=RecipeRef}
//	@Success		202		{object}	Envelope{data=TaskAccepted}
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/crud [post]
func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	if isTrue(r.URL.Query().Get("async")) {
		h.createAsync(w, r, in)
		return
	}
	id, err := h.engine.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, "create recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: RecipeRef{ID: id}, Message: "recipe created"})
}

// SubmitCreate handles POST /recipes.
//
//	@Summary		Queue a recipe create
//	@Tags			recipes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RecipeInput	true	"Recipe to create"
//	@Success		202		{object}	Envelope{data=TaskAccepted}
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes [post]
func (h *Handler) SubmitCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	h.createAsync(w, r, in)
}

func (h *Handler) createAsync(w http.ResponseWriter, r *http.Request, in models.RecipeInput) {
	if err := mutation.ValidateCreate(&in); err != nil {
		writeError(w, r, "create recipe", err)
		return
	}
	h.accept(w, r, tasks.TaskCreate, tasks.MutationPayload{Input: in})
}

// UpdateRecipe handles PATCH /recipes/crud/{id}.
//
//	@Summary		Update the fields present in the body
//	@Tags			recipes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Recipe id"
//	@Param			body	body		RecipeInput	true	"Fields to change"
//	@Success		200		{object}	Envelope{data=RecipeRef}
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/crud/{id} [patch]
func (h *Handler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	if err := h.engine.Update(r.Context(), id, in); err != nil {
		writeError(w, r, "update recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: RecipeRef{ID: id}, Message: "recipe updated"})
}

// DeleteRecipe handles DELETE /recipes/crud/{id}.
//
//	@Summary		Delete a recipe
//	@Tags			recipes
//	@Produce		json
//	@Param			id	path		string	true	"Recipe id"
//	@Success		200	{object}	Envelope{data=RecipeRef}
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/crud/{id} [delete]
func (h *Handler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Delete(r.Context(), id); err != nil {
		writeError(w, r, "delete recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: RecipeRef{ID: id}, Message: "recipe deleted"})
}

// SubmitDelete handles DELETE /recipes/{id}.
//
//	@Summary		Queue a recipe delete
//	@Tags			recipes
//	@Produce		json
//	@Param			id	path		string	true	"Recipe id"
//	@Success		202	{object}	Envelope{data=TaskAccepted}
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recipes/{id} [delete]
func (h *Handler) SubmitDelete(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, tasks.TaskDelete, tasks.MutationPayload{ID: chi.URLParam(r, "id")})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request, name string, payload any) {
	id, err := h.submit(r.Context(), name, payload)
	if err != nil {
		logFailure(r, "submit "+name, err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody(CodeUnavailable, "task queue unavailable", nil))
		return
	}
	writeJSON(w, http.StatusAccepted, Envelope{Data: TaskAccepted{TaskID: id}, Message: "task submitted"})
}

func (h *Handler) submit(ctx context.Context, name string, payload any) (string, error) {
	if h.dispatcher == nil {
		return "", errNoDispatcher
	}
	return h.dispatcher.Submit(ctx, name, payload)
}

func decodeInput(w http.ResponseWriter, r *http.Request) (models.RecipeInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var in models.RecipeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(CodeValidation, "invalid JSON body", nil))
		return in, false
	}
	return in, true
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
