package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazardwatch/apiserver/internal/store"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the caller's scope does not cover the target.
	ErrForbidden = errors.New("forbidden")

	// ErrRolesPending is returned when a decision needs roles that have not loaded yet.
	ErrRolesPending = errors.New("roles not loaded")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStatus is returned alongside a ValidationError for an unknown status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrStore is matched by every *StoreError.
	ErrStore = errors.New("store unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRateLimited        = errors.New("submission limit reached")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StoreError wraps a transient persistence failure. Nothing was written.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// wrapStore classifies a repository error. Not-found passes through so
// callers can tell it apart from an outage.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
