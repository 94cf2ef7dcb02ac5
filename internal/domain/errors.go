package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	ErrInherited     = errors.New("scenario is inherited from a template")
	ErrTemplateCycle = errors.New("template link cycle")
	ErrNotTemplate   = errors.New("host is not a template")
)

// Error codes for standardized API error responses.
const (
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
	ErrCodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationError       = "VALIDATION_ERROR"
	ErrCodePreconditionFailed    = "PRECONDITION_FAILED"
	ErrCodeNamingConflict        = "NAMING_CONFLICT"
	ErrCodeInherited             = "INHERITED"
	ErrCodeTemplateCycle         = "TEMPLATE_CYCLE"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// NamingConflictError is returned when inheriting a scenario onto a host that
// already owns an unrelated scenario with the same name.
type NamingConflictError struct {
	Scenario string
	Host     string
}

// Error implements the error interface.
func (e *NamingConflictError) Error() string {
	return fmt.Sprintf("web scenario %q already exists on host %q", e.Scenario, e.Host)
}

// Is lets errors.Is(err, ErrConflict) match naming conflicts.
func (e *NamingConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StandardError represents a standardized error response from the API.
type StandardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// StandardErrorResponse wraps a StandardError for JSON responses.
type StandardErrorResponse struct {
	Error StandardError `json:"error"`
}
