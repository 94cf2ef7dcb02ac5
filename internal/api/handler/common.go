package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/api/middleware"
	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/validation"
)

// APIKeyPrefix starts every generated API key.
const APIKeyPrefix = "wsm_"

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondStandardError writes an error in the standard envelope.
func respondStandardError(w http.ResponseWriter, status int, code, message, field string, details map[string]any) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{
			Code:    code,
			Message: message,
			Field:   field,
			Details: details,
		},
	})
}

// respondError writes a bad request style error without details.
func respondError(w http.ResponseWriter, status int, message string) {
	code := domain.ErrCodeInvalidInput
	if status >= http.StatusInternalServerError {
		code = domain.ErrCodeInternalError
	}
	respondStandardError(w, status, code, message, "", nil)
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *domain.NamingConflictError
	var validationErrs validation.ValidationErrors

	switch {
	case errors.As(err, &conflict):
		respondStandardError(w, http.StatusConflict, domain.ErrCodeNamingConflict, conflict.Error(), "", map[string]any{
			"scenario": conflict.Scenario,
			"host":     conflict.Host,
		})
	case errors.As(err, &validationErrs):
		respondValidationErrors(w, validationErrs)
	case errors.Is(err, domain.ErrNotFound):
		respondStandardError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "not found", "", nil)
	case errors.Is(err, domain.ErrAlreadyExists):
		respondStandardError(w, http.StatusConflict, domain.ErrCodeResourceAlreadyExists, err.Error(), "", nil)
	case errors.Is(err, domain.ErrInherited):
		respondStandardError(w, http.StatusConflict, domain.ErrCodeInherited, err.Error(), "", nil)
	case errors.Is(err, domain.ErrTemplateCycle):
		respondStandardError(w, http.StatusConflict, domain.ErrCodeTemplateCycle, err.Error(), "", nil)
	case errors.Is(err, domain.ErrNotTemplate):
		respondStandardError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error(), "template_id", nil)
	case errors.Is(err, domain.ErrInvalidInput):
		respondStandardError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid input", "", nil)
	case errors.Is(err, domain.ErrUnauthorized):
		respondStandardError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized", "", nil)
	default:
		middleware.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
		respondStandardError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error", "", nil)
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new random API key.
func generateAPIKey() (key string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	key = APIKeyPrefix + hex.EncodeToString(bytes)
	hash = hashKey(key)
	prefix = key[:len(APIKeyPrefix)+8]

	return key, hash, prefix, nil
}

// hashKey creates a SHA-256 hash of the API key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// respondValidationError writes a JSON validation error response.
func respondValidationError(w http.ResponseWriter, field, value, message string) {
	respondValidationErrors(w, validation.ValidationErrors{validation.NewValidationError(field, value, message)})
}

// respondValidationErrors writes a JSON response for multiple validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	first := errs[0]
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error": domain.StandardError{
			Code:    domain.ErrCodeValidationError,
			Message: errs.Error(),
			Field:   first.Field,
		},
		"errors": errs,
	})
}
