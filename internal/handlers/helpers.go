package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/jobs"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps job service errors onto HTTP status codes.
// Validation failures carry the offending field.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error) error {
	var validation *jobs.ValidationError
	switch {
	case errors.As(err, &validation):
		return WriteJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"error":  err.Error(),
			"field":  validation.Field,
		})
	case errors.Is(err, jobs.ErrValidation):
		return WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobsActive), errors.Is(err, jobs.ErrInvalidTransition):
		return WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return WriteError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Error().Err(err).Msg("Request failed")
		return WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// GetLimitParam reads a non-negative limit from the query string.
// Missing values return fallback; values above max are capped.
func GetLimitParam(r *http.Request, fallback, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

// GetBoolParam reports whether the named query parameter is true
func GetBoolParam(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && value
}

// PathSegments splits the part of path after prefix into its segments.
// "/api/groups/g1/pause" with prefix "/api/groups/" yields ["g1", "pause"].
func PathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
