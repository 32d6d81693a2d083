package api

import (
	"net/http" // HTTP status codes

	"remittance_system/internal/domain"     // Importing domain models
	"remittance_system/internal/middleware" // Request context helpers
	"remittance_system/internal/service"    // Remittance operations

	"github.com/gin-gonic/gin" // Gin web framework
)

// StatusRequest is the body of every admin status change
type StatusRequest struct {
	Status string `json:"status" binding:"required"` // Target status
}

// AdminListTransactionsHandler returns all transactions of the tenant, with optional status filter
func AdminListTransactionsHandler(svc *service.Transactions) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c) // Page parameters
		filter := service.TransactionFilter{Page: page, PageSize: pageSize}
		if raw := c.Query("status"); raw != "" {
			status, ok := domain.ParseTransactionStatus(raw)
			if !ok {
				badRequest(c, "Invalid status")
				return
			}
			filter.Status = status // Filter by status
		}
		result, err := svc.AdminList(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": result.Items,      // List of transactions
			"page":         result.Page,       // Current page
			"page_size":    result.PageSize,   // Page size
			"total":        result.Total,      // Total number of transactions
			"total_pages":  result.TotalPages, // Total pages
		})
	}
}

// AdminTransitionTransactionHandler moves a transaction to the requested status
func AdminTransitionTransactionHandler(svc *service.Transactions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req StatusRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		target, ok := domain.ParseTransactionStatus(req.Status)
		if !ok {
			badRequest(c, "Invalid status")
			return
		}
		tx, err := svc.AdminTransition(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), id, target)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
	}
}

// AdminListWithdrawalsHandler returns all withdrawals of the tenant, with optional status filter
func AdminListWithdrawalsHandler(svc *service.Withdrawals) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c) // Page parameters
		filter := service.WithdrawalFilter{Page: page, PageSize: pageSize}
		if raw := c.Query("status"); raw != "" {
			status, ok := domain.ParseWithdrawalStatus(raw)
			if !ok {
				badRequest(c, "Invalid status")
				return
			}
			filter.Status = status // Filter by status
		}
		result, err := svc.AdminList(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"withdrawals": result.Items,      // List of withdrawals
			"page":        result.Page,       // Current page
			"page_size":   result.PageSize,   // Page size
			"total":       result.Total,      // Total number of withdrawals
			"total_pages": result.TotalPages, // Total pages
		})
	}
}

// AdminTransitionWithdrawalHandler moves a withdrawal to the requested status
func AdminTransitionWithdrawalHandler(svc *service.Withdrawals) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req StatusRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		target, ok := domain.ParseWithdrawalStatus(req.Status)
		if !ok {
			badRequest(c, "Invalid status")
			return
		}
		w, err := svc.AdminTransition(c.Request.Context(), middleware.Scope(c), middleware.UserID(c), id, target)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"withdrawal": w})
	}
}
