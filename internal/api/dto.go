package api

import (
	"encoding/json"

	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/tasks"
)

// Recipe is the normalized recipe record (aliased from the domain layer).
type Recipe = models.Recipe

// RecipeInput is the create and update body (aliased from the domain layer).
type RecipeInput = models.RecipeInput

// TaskAccepted is returned for every asynchronous submission.
type TaskAccepted struct {
	TaskID string `json:"task_id" example:"7b0d5c1e-3f5e-4a2b-9f0a-0c1d2e3f4a5b" validate:"required"`
}

// RecipeRef identifies the recipe touched by a synchronous mutation.
type RecipeRef struct {
	ID string `json:"id" example:"pancakes" validate:"required"`
}

// SearchResult is the data of a synchronous fallback search.
type SearchResult struct {
	Recipes []Recipe `json:"recipes" validate:"required"`
	Page    int      `json:"page" example:"1"`
	PerPage int      `json:"per_page" example:"20"`
	Total   int      `json:"total" example:"42"`
}

// TaskStatus is the response of GET /recipes/tasks/{id}.
type TaskStatus struct {
	TaskID    string          `json:"task_id" validate:"required"`
	Name      string          `json:"name,omitempty" example:"recipes.search"`
	State     string          `json:"state" example:"SUCCESS" enums:"PENDING,STARTED,RETRY,SUCCESS,FAILURE" validate:"required"`
	Result    json.RawMessage `json:"result,omitempty" swaggertype:"object"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty" enums:"transient,timeout,permanent"`
	Retries   int             `json:"retries"`
}

func taskStatus(r tasks.Result) TaskStatus {
	return TaskStatus{
		TaskID:    r.TaskID,
		Name:      r.Name,
		State:     string(r.State),
		Result:    r.Result,
		Error:     r.Error,
		ErrorKind: string(r.ErrorKind),
		Retries:   r.Retries,
	}
}

func pageMeta(p models.SearchPage) *Meta {
	return &Meta{Total: p.Total, Page: p.Page, PerPage: p.PerPage, TotalPages: p.TotalPages()}
}
