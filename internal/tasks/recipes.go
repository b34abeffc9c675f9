package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/query"
	"github.com/starford/feinschmecker/internal/recipes"
)

// MutationPayload is the payload of the create, update and delete tasks.
type MutationPayload struct {
	ID    string             `json:"id,omitempty"`
	Input models.RecipeInput `json:"input"`
}

// MutationResult is the result of a mutation task.
type MutationResult struct {
	ID string `json:"id"`
}

// RegisterRecipeHandlers wires the recipe tasks to svc and eng.
func RegisterRecipeHandlers(w *Worker, svc *recipes.Service, eng *mutation.Engine) {
	w.Handle(TaskSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req query.Request
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return svc.Search(ctx, req)
	})
	w.Handle(TaskCreate, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p MutationPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		id, err := eng.Create(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return MutationResult{ID: id}, nil
	})
	w.Handle(TaskUpdate, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p MutationPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if err := eng.Update(ctx, p.ID, p.Input); err != nil {
			return nil, err
		}
		return MutationResult{ID: p.ID}, nil
	})
	w.Handle(TaskDelete, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p MutationPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if err := eng.Delete(ctx, p.ID); err != nil {
			return nil, err
		}
		return MutationResult{ID: p.ID}, nil
	})
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: bad task payload: %w", apperr.ErrValidation, err)
	}
	return nil
}
