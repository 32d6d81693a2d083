package api

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/middleware" // Request context helpers
	"remittance_system/internal/service"    // Remittance operations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// InitiatePaymentRequest lists the fields a sender may set
type InitiatePaymentRequest struct {
	Method          string `json:"method" binding:"required"` // WALLET, PROVIDER_A or PROVIDER_B
	SimulateSuccess *bool  `json:"simulate_success"`          // Provider A outcome, defaults to success
}

// InitiatePaymentHandler starts payment of a validated transaction
func InitiatePaymentHandler(svc *service.Payments, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req InitiatePaymentRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		method, ok := service.ParsePaymentMethod(req.Method)
		if !ok {
			badRequest(c, "Unsupported payment method")
			return
		}
		userID := middleware.UserID(c)
		res, err := svc.Initiate(c.Request.Context(), middleware.Scope(c), service.InitiatePaymentInput{
			UserID:          userID,
			TransactionID:   id,
			Method:          method,
			SimulateSuccess: req.SimulateSuccess,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if method == service.MethodWallet {
			invalidateWallet(c, rdb, userID) // Balance changed
		}
		c.JSON(http.StatusOK, gin.H{"payment": res})
	}
}

// PaymentStatusHandler returns the payment view of a transaction
func PaymentStatusHandler(svc *service.Payments) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		res, err := svc.Status(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payment": res})
	}
}
