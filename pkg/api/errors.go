package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/movi/pkg/services"
)

// mapServiceError translates session service failures to HTTP responses.
func mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, services.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "session expired"})
	case errors.Is(err, services.ErrSessionNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not pending"})
	case errors.Is(err, services.ErrUserMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to a different user"})
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
