package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/apexvest/backend/internal/services"
	"github.com/apexvest/backend/internal/store"
)

// statusForError maps service failures onto HTTP status codes.
func statusForError(err error) int {
	var conflict *store.VersionConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict
	}

	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidState:
		return http.StatusConflict
	case services.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func sendServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An Internal Error Occurred"
	}
	services.SendErrorResponse(w, message, status, nil)
}

func sendJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// decodeBody decodes a single strict JSON object into dst with a 1 MB
// cap, matching what every write endpoint expects.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func contextUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}
