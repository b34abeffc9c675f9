package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
	"github.com/starford/feinschmecker/internal/respcache"
	"github.com/starford/feinschmecker/internal/tasks"
)

// Deps are the collaborators of the router. Recipes and Engine are
// required; a nil Dispatcher makes every search run inline and every async
// submission fail with 503.
type Deps struct {
	Recipes    *recipes.Service
	Engine     *mutation.Engine
	Dispatcher *tasks.Dispatcher
	Cache      *respcache.Cache

	// Version returns the graph version searches are cached under.
	Version func(context.Context) int64
	Limits  query.PageLimits

	AuthEnabled bool
	AuthToken   string
	CORSOrigins []string

	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Metrics, if non-nil, is mounted at MetricsPath outside the auth group.
	Metrics     http.Handler
	MetricsPath string
	// Ready reports whether a graph is loaded; nil means always ready.
	Ready func() bool
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	if len(d.CORSOrigins) > 0 {
		r.Use(CORSMiddleware(d.CORSOrigins))
	}

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if d.Ready != nil && !d.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.AuthEnabled, d.AuthToken))

		// Search.
		r.Get("/recipes", h.SearchRecipes)
		r.Get("/recipes/tasks/{id}", h.TaskStatus)

		// Synchronous CRUD.
		r.Post("/recipes/crud", h.CreateRecipe)
		r.Get("/recipes/crud/{id}", h.GetRecipe)
		r.Patch("/recipes/crud/{id}", h.UpdateRecipe)
		r.Delete("/recipes/crud/{id}", h.DeleteRecipe)

		// Queued mutations.
		r.Post("/recipes", h.SubmitCreate)
		r.Delete("/recipes/{id}", h.SubmitDelete)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
