package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/feinschmecker/internal/apperr"
)

// Error codes.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeNoOntology    = "NO_ONTOLOGY"
	CodePersistFailed = "PERSIST_FAILED"
	CodeSearchFailed  = "SEARCH_FAILED"
	CodeUnavailable   = "TASK_QUEUE_UNAVAILABLE"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Meta carries pagination details.
type Meta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// Envelope wraps every successful response.
type Envelope struct {
	Data     any    `json:"data"`
	Meta     *Meta  `json:"meta,omitempty"`
	Message  string `json:"message,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// ErrorDetail is the body of a failed response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errResponse struct {
	Error ErrorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func errorBody(code, msg string, details any) errResponse {
	return errResponse{Error: ErrorDetail{Code: code, Message: msg, Details: details}}
}

// writeError maps err onto a status and a client-safe body. Unexpected
// errors are logged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody(CodeValidation, "invalid request", verr.Fields))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(CodeValidation, "invalid request", nil))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(CodeNotFound, "recipe not found", nil))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusBadRequest, errorBody(CodeAlreadyExists, "a recipe with this title already exists", nil))
	case errors.Is(err, apperr.ErrNoStoreLoaded):
		logFailure(r, op, err)
		writeJSON(w, http.StatusInternalServerError, errorBody(CodeNoOntology, "recipe graph is not loaded", nil))
	case errors.Is(err, apperr.ErrPersistFailed):
		logFailure(r, op, err)
		writeJSON(w, http.StatusInternalServerError, errorBody(CodePersistFailed, "could not save changes", nil))
	default:
		logFailure(r, op, err)
		writeJSON(w, http.StatusInternalServerError, errorBody(CodeInternal, "internal error", nil))
	}
}

func logFailure(r *http.Request, op string, err error) {
	slog.Error(op+" failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()))
}
