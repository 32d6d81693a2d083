package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"remittance_system/internal/middleware" // Error mapping

	"github.com/gin-gonic/gin" // Gin web framework
)

// respondError maps err to its status and body
func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// badRequest answers a malformed body or parameter
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "VALIDATION_FAILED"})
}

// pathID parses a positive numeric path parameter
func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// pagination reads page and page_size the way every listing accepts them
func pagination(c *gin.Context) (int, int) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if p := c.Query("page"); p != "" {
		// If valid, set page number
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	// Check and set page size within limits
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
