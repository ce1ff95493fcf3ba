package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/docpipe/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteMethodNotAllowed(w, method)
		return false
	}
	return true
}

// WriteMethodNotAllowed answers 405 with an Allow header and the JSON error body
func WriteMethodNotAllowed(w http.ResponseWriter, allowed ...string) error {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	return WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteFailure writes an error classified by its kind
func WriteFailure(w http.ResponseWriter, err error) error {
	failure := models.NewFailure(err)
	return WriteJSON(w, StatusForKind(failure.Kind), map[string]string{
		"status": "error",
		"kind":   failure.Kind,
		"error":  failure.Message,
	})
}

// StatusForKind maps a failure kind onto an HTTP status code
func StatusForKind(kind string) int {
	switch kind {
	case models.KindInvalidParameter, models.KindRange:
		return http.StatusBadRequest
	case models.KindAuth:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindBusy:
		return http.StatusConflict
	case models.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case models.KindUnsupportedLanguage:
		return http.StatusUnprocessableEntity
	case models.KindBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PathSegments returns the path parts after prefix.
// Example: PathSegments("/api/sessions/ses_1/reset", "/api/sessions/") -> ["ses_1", "reset"]
func PathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
