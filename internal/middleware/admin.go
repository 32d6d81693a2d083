package middleware

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/domain"  // Permissions
	"remittance_system/internal/service" // Authorization

	"github.com/gin-gonic/gin" // Gin web framework
)

// RequirePermission checks the user's stored role on each request
func RequirePermission(perm domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c) // Get userID from context
		// Check if userID exists in context
		if userID == 0 {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "UNAUTHORIZED"})
			return
		}
		// Load the user in the tenant store and check the capability
		if _, err := service.Authorize(c.Request.Context(), Scope(c), userID, perm); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next() // Proceed to the next handler
	}
}
