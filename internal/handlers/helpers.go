package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/request"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/benvon/flowstate/internal/validation"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds client-visible error text
func sanitizeErrorMessage(message string) string {
	runes := []rune(message)
	if len(runes) > maxErrorMessageLength {
		return string(runes[:maxErrorMessageLength]) + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondTrackerError maps tracker errors onto HTTP statuses. Unexpected errors are logged
// and reported as "Failed to <action>".
func respondTrackerError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error, action string) {
	switch {
	case tracker.IsValidationError(err):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, tracker.ErrSessionNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Session not found")
	default:
		logger.Error("failed_to_"+action,
			zap.String("user_id", logpkg.SanitizeUserID(request.UserIDFromContext(r.Context()))),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to "+humanize(action))
	}
}

func humanize(action string) string {
	out := []rune(action)
	for i, r := range out {
		if r == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

// isYAML reports whether the request body or the requested rendering is YAML
func isYAML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return true
	}
	return false
}

// decodeRequest reads a JSON or YAML body into dst and runs struct validation.
// It writes the error response itself and reports whether decoding succeeded.
// An empty body leaves dst at its zero value when allowEmpty is set.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if r.Body == nil || (r.ContentLength == 0 && r.Header.Get("Content-Type") == "") {
		if allowEmpty {
			return validateRequest(w, dst)
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Request body is required")
		return false
	}

	var err error
	if isYAML(r.Header.Get("Content-Type")) {
		err = yaml.NewDecoder(r.Body).Decode(dst)
	} else {
		err = json.NewDecoder(r.Body).Decode(dst)
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		if allowEmpty && errors.Is(err, io.EOF) {
			return validateRequest(w, dst)
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	return validateRequest(w, dst)
}

func validateRequest(w http.ResponseWriter, dst any) bool {
	if err := validation.Validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return false
		}
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// Non-struct targets have nothing to validate
			return true
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return false
	}
	return true
}


// scopedUserID returns the user id placed on the context by middleware.UserScope
func scopedUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := request.UserIDFromContext(r.Context())
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "user_id is required")
		return "", false
	}
	return userID, true
}
