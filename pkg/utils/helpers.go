package utils

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUID helpers
func NewUUID() string {
	return uuid.New().String()
}

// ClampLimit parses a page-size query value. Empty input yields def; values
// are clamped to [1, max].
func ClampLimit(raw string, def, max int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid limit")
	}
	if n < 1 {
		return 1, nil
	}
	if n > max {
		return max, nil
	}
	return n, nil
}

// RespondWithError sends a JSON error response with the given status code and message
func RespondWithError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// GetClientIDFromContext extracts the client id set by the auth middleware.
func GetClientIDFromContext(c *gin.Context, key string) (string, error) {
	v, exists := c.Get(key)
	if !exists {
		return "", errors.New("authentication required")
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", errors.New("invalid client ID type")
	}
	return id, nil
}

// StatusForError maps a lookup error onto an HTTP status.
func StatusForError(err error, notFound ...error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}
