package middleware

import (
	"context"
	"errors"
	"net/http"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// apiError is the client-facing shape of a failure
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps a domain error to its HTTP response. Messages are fixed
// strings so status tables and storage details never reach the client;
// validation messages are written by the services for the caller.
func classify(err error) apiError {
	switch {
	case errors.Is(err, domain.ErrMissingTenant):
		return apiError{http.StatusBadRequest, "MISSING_TENANT", "X-Tenant-ID header is required"}
	case errors.Is(err, domain.ErrUnknownTenant):
		return apiError{http.StatusNotFound, "UNKNOWN_TENANT", "Unknown tenant"}
	case errors.Is(err, domain.ErrInactiveTenant):
		return apiError{http.StatusForbidden, "INACTIVE_TENANT", "Tenant is inactive"}
	case errors.Is(err, domain.ErrUnroutableTenant):
		return apiError{http.StatusServiceUnavailable, "TENANT_UNROUTABLE", "Tenant has no data store"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, db.ErrRouterClosed):
		return apiError{http.StatusServiceUnavailable, "TENANT_UNAVAILABLE", "Tenant store unavailable"}
	case errors.Is(err, domain.ErrNotFound):
		return apiError{http.StatusNotFound, "NOT_FOUND", "Resource not found"}
	case errors.Is(err, domain.ErrForbidden):
		return apiError{http.StatusForbidden, "FORBIDDEN", "Not allowed"}
	case errors.Is(err, domain.ErrValidation):
		return apiError{http.StatusBadRequest, "VALIDATION_FAILED", err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return apiError{http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Status change not allowed"}
	case errors.Is(err, domain.ErrInvalidState):
		return apiError{http.StatusUnprocessableEntity, "INVALID_STATE", "Operation not allowed in the current state"}
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apiError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	case errors.Is(err, domain.ErrStaleState):
		return apiError{http.StatusConflict, "STALE_STATE", "Resource changed, reload and retry"}
	case errors.Is(err, domain.ErrConflict):
		return apiError{http.StatusConflict, "CONFLICT", "Conflicting request"}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL", "Internal error"}
	}
}

// AbortWithError writes the response for err and stops the chain
func AbortWithError(c *gin.Context, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		// Log the error with context
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method, // HTTP method
			"path":   c.FullPath(),     // Route pattern
			"status": e.status,         // Response status
			"error":  err.Error(),      // Error message
		}).Error("Request failed")
	}
	c.AbortWithStatusJSON(e.status, gin.H{"error": e.message, "code": e.code})
}
