package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Per-field validation details
}

// ValidationHelper wraps a shared validator instance for request payloads.
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed the '%s' rule", fe.Tag())
	}
}

// SendErrorResponse sends a JSON error response, attaching per-field
// details when the error came from payload validation.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if fieldErrs, ok := validationErr.(validator.ValidationErrors); ok {
		errorResp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			errorResp.Details[fe.Field()] = tagMessage(fe)
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
