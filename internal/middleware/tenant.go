package middleware

import (
	"remittance_system/internal/db"      // Connection router
	"remittance_system/internal/service" // Service scope
	"remittance_system/internal/tenant"  // Tenant resolution

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// TenantHeader carries the tenant code or numeric id
const TenantHeader = "X-Tenant-ID"

// Context keys
const (
	tenantKey = "tenant"
	dbKey     = "db"
	userIDKey = "userID"
)

// TenantMiddleware resolves the tenant and leases its connection for the
// duration of the request. Nothing downstream runs when resolution fails.
func TenantMiddleware(resolver *tenant.Resolver, router *db.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := resolver.Resolve(c.Request.Context(), c.GetHeader(TenantHeader)) // Resolve header
		if err != nil {
			AbortWithError(c, err)
			return
		}
		h, err := router.Acquire(c.Request.Context(), tc.RoutingKey, tc.ConnString) // Lease tenant connection
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer h.Release() // Return the lease once the handler chain is done

		c.Set(tenantKey, tc) // Store tenant in context
		c.Set(dbKey, h.DB)   // Store tenant connection in context
		c.Next()             // Proceed to the next handler
	}
}

// Tenant returns the tenant resolved for the request
func Tenant(c *gin.Context) tenant.Context {
	tc, _ := c.Get(tenantKey)
	v, _ := tc.(tenant.Context)
	return v
}

// TenantDB returns the tenant connection leased for the request
func TenantDB(c *gin.Context) *gorm.DB {
	v, _ := c.Get(dbKey)
	gdb, _ := v.(*gorm.DB)
	return gdb
}

// Scope returns the service scope of the request
func Scope(c *gin.Context) service.Scope {
	return service.NewScope(TenantDB(c), Tenant(c))
}

// UserID returns the authenticated user, zero when unauthenticated
func UserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}
