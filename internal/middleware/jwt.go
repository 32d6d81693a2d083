package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"remittance_system/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// JWTAuthMiddleware validates JWT tokens and extracts user information.
// It runs after TenantMiddleware: a token issued for another tenant is refused.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header", "code": "UNAUTHORIZED"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string and parse it
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "UNAUTHORIZED"})
			return
		}
		// Token must belong to the resolved tenant
		if !strings.EqualFold(claims.TenantCode, Tenant(c).Code) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token not valid for this tenant", "code": "FORBIDDEN"})
			return
		}
		c.Set(userIDKey, claims.UserID) // Store userID in context
		c.Next()                        // Proceed to the next handler
	}
}
