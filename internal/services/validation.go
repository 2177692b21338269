package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/trektally/backend/internal/models"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Kind    string            `json:"kind,omitempty"`    // Machine-readable error kind
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErr.(validator.ValidationErrors) {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// statusForKind maps the internal error taxonomy onto HTTP status codes.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindPermissionDenied:
		return http.StatusForbidden
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindConflict, models.KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SendError answers with the status and message derived from a service-layer
// error. Untyped errors are reported as a generic store failure so internal
// detail never leaks to clients.
func SendError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)

	message := "Request failed"
	if e, ok := err.(*models.Error); ok {
		message = e.Message
	}
	if kind == models.KindStore {
		message = "A storage error occurred, please retry"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Kind: kind.String()})
}
