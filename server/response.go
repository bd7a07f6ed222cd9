package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// readJSON reads and decodes a JSON request body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return err
	}
	return nil
}

// statusForError maps sentinel errors to HTTP status codes. Unknown
// errors map to 500.
func statusForError(err error) int {
	switch {
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case errors.IsForbiddenError(err):
		return http.StatusForbidden
	case errors.IsOverBudgetError(err):
		return http.StatusTooManyRequests
	case errors.IsStoreUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and writes the mapped JSON error response.
// Internal errors get a generic message so store details never leak.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	s.logger.Debugw("Request failed",
		logger.FieldPath, r.URL.Path,
		logger.FieldMethod, r.Method,
		logger.FieldStatus, status,
		logger.FieldError, err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// parseIntQueryParam parses an integer query parameter, falling back to
// defaultValue and clamping to [min, max].
func parseIntQueryParam(r *http.Request, name string, defaultValue, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
