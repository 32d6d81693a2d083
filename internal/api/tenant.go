package api

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/middleware" // Request context helpers

	"github.com/gin-gonic/gin" // Gin web framework
)

// TenantSummaryHandler returns how the request's tenant was resolved
func TenantSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": middleware.Tenant(c).Summary()})
	}
}
