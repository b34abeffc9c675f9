// Package apperr holds the error taxonomy shared by the store, engine and API layers.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrNoStoreLoaded = errors.New("graph store not loaded")
	ErrPersistFailed = errors.New("persist failed")
	ErrQueryFailed   = errors.New("query failed")
)

// ValidationError carries itemized field errors. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError for a single field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Fields: map[string]string{field: fmt.Sprintf(format, args...)}}
}

// FromValidation converts ozzo-validation output into a ValidationError.
// Internal rule errors (validation.InternalError) are returned unchanged.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for k, v := range errs {
			if v != nil {
				fields[k] = v.Error()
			}
		}
		return &ValidationError{Fields: fields}
	}
	return &ValidationError{Fields: map[string]string{"_": err.Error()}}
}
