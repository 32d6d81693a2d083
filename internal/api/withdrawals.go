package api

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/middleware" // Request context helpers
	"remittance_system/internal/service"    // Remittance operations

	"github.com/gin-gonic/gin" // Gin web framework
)

// CreateWithdrawalRequest lists the fields a user may set
type CreateWithdrawalRequest struct {
	TransactionID uint   `json:"transaction_id" binding:"required"` // Paid transaction to withdraw
	Method        string `json:"method" binding:"required"`         // Payout method
}

// CreateWithdrawalHandler requests a payout for a paid transaction
func CreateWithdrawalHandler(svc *service.Withdrawals) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWithdrawalRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		w, err := svc.Create(c.Request.Context(), middleware.Scope(c), service.CreateWithdrawalInput{
			UserID:        middleware.UserID(c),
			TransactionID: req.TransactionID,
			Method:        req.Method,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"withdrawal": w})
	}
}

// ListWithdrawalsHandler returns the user's withdrawals
func ListWithdrawalsHandler(svc *service.Withdrawals) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := svc.ListMine(c.Request.Context(), middleware.Scope(c), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"withdrawals": ws})
	}
}
