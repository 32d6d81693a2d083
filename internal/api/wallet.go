package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"remittance_system/internal/domain"     // Importing domain models
	"remittance_system/internal/middleware" // Request context helpers
	"remittance_system/internal/service"    // Remittance operations
	"remittance_system/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// walletCacheTTL bounds how stale a cached balance may be
const walletCacheTTL = 60 * time.Second

// walletCacheKey is per tenant because user ids repeat across tenant stores
func walletCacheKey(tenantCode string, userID uint) string {
	return "wallet:" + tenantCode + ":user:" + strconv.FormatUint(uint64(userID), 10)
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(svc *service.Wallets, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)                                // Get userID from context
		cacheKey := walletCacheKey(middleware.Tenant(c).Code, userID) // Cache key for wallet
		ctx := context.Background()                                   // Context for Redis operations
		if rdb != nil {
			var cached domain.Wallet
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached) // Try to get from cache
			// If found in cache, return it
			if err == nil && found {
				c.JSON(http.StatusOK, gin.H{"wallet": cached, "cached": true})
				return
			}
		}
		// If not in cache, fetch from DB
		wallet, err := svc.Get(c.Request.Context(), middleware.Scope(c), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		if rdb != nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, wallet, walletCacheTTL) // Cache the wallet
		}
		c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": false}) // Return wallet info
	}
}

// CreditWalletRequest lists the fields staff may set
type CreditWalletRequest struct {
	Amount   decimal.Decimal `json:"amount"`                      // Amount to add
	Currency string          `json:"currency" binding:"required"` // Wallet currency
}

// CreditWalletHandler adds funds to a user's wallet
func CreditWalletHandler(svc *service.Wallets, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := pathID(c, "userID")
		if !ok {
			return
		}
		var req CreditWalletRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		wallet, err := svc.Credit(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), service.CreditInput{
			UserID:   userID,
			Amount:   req.Amount,
			Currency: req.Currency,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		invalidateWallet(c, rdb, userID) // Invalidate wallet cache
		c.JSON(http.StatusOK, gin.H{"wallet": wallet})
	}
}

// invalidateWallet drops the cached balance of userID
func invalidateWallet(c *gin.Context, rdb redis.Cmdable, userID uint) {
	if rdb == nil {
		return
	}
	key := walletCacheKey(middleware.Tenant(c).Code, userID)
	if err := utils.DeleteCache(context.Background(), rdb, key); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,         // Cache key
			"error": err.Error(), // Error message
		}).Warn("Failed to invalidate wallet cache")
	}
}
