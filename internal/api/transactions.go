package api

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/middleware" // Request context helpers
	"remittance_system/internal/service"    // Remittance operations

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Money amounts
)

// CreateTransactionRequest lists the fields a sender may set
type CreateTransactionRequest struct {
	BeneficiaryID uint            `json:"beneficiary_id" binding:"required"` // Registered receiver
	Amount        decimal.Decimal `json:"amount"`                            // Amount to send
	Currency      string          `json:"currency" binding:"required"`       // ISO currency code
	PayoutMethod  string          `json:"payout_method" binding:"required"`  // How the receiver is paid
}

// CreateTransactionHandler opens a transfer for the authenticated sender
func CreateTransactionHandler(svc *service.Transactions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTransactionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		tx, err := svc.Create(c.Request.Context(), middleware.Scope(c), service.CreateTransactionInput{
			SenderID:      middleware.UserID(c), // Authenticated sender
			BeneficiaryID: req.BeneficiaryID,    // Receiver
			Amount:        req.Amount,           // Amount
			Currency:      req.Currency,         // Currency
			PayoutMethod:  req.PayoutMethod,     // Payout method
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"transaction": tx}) // Return created transaction
	}
}

// ListTransactionsHandler returns the sender's transactions
func ListTransactionsHandler(svc *service.Transactions) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.ListForSender(c.Request.Context(), middleware.Scope(c), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

// GetTransactionHandler returns one of the sender's transactions
func GetTransactionHandler(svc *service.Transactions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		tx, err := svc.GetForSender(c.Request.Context(), middleware.Scope(c), id, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
	}
}
