package api

import (
	"remittance_system/internal/db"         // Connection router
	"remittance_system/internal/domain"     // Permissions
	"remittance_system/internal/middleware" // Custom package for middleware
	"remittance_system/internal/service"    // Remittance operations
	"remittance_system/internal/tenant"     // Tenant resolution

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Deps are the collaborators the HTTP surface needs
type Deps struct {
	Resolver     *tenant.Resolver
	Router       *db.Router
	Redis        redis.Cmdable
	JWTSecret    string
	Transactions *service.Transactions
	Payments     *service.Payments
	Withdrawals  *service.Withdrawals
	Wallets      *service.Wallets
}

// RegisterRoutes mounts every route on r. All routes resolve the tenant first.
func RegisterRoutes(r *gin.Engine, d Deps) {
	tenantMW := middleware.TenantMiddleware(d.Resolver, d.Router) // Tenant resolution and connection lease
	authMW := middleware.JWTAuthMiddleware(d.JWTSecret)           // Authentication

	r.GET("/tenant", tenantMW, TenantSummaryHandler()) // Resolution summary

	// Sender routes (protected by JWT)
	user := r.Group("", tenantMW, authMW)
	user.POST("/transactions", middleware.RequirePermission(domain.PermSendMoney), CreateTransactionHandler(d.Transactions))
	user.GET("/transactions", ListTransactionsHandler(d.Transactions))
	user.GET("/transactions/:id", GetTransactionHandler(d.Transactions))
	user.POST("/transactions/:id/payment", middleware.RequirePermission(domain.PermSendMoney), InitiatePaymentHandler(d.Payments, d.Redis))
	user.GET("/transactions/:id/payment", PaymentStatusHandler(d.Payments))
	user.POST("/withdrawals", middleware.RequirePermission(domain.PermRequestWithdrawal), CreateWithdrawalHandler(d.Withdrawals))
	user.GET("/withdrawals", ListWithdrawalsHandler(d.Withdrawals))
	user.GET("/wallet", GetWalletHandler(d.Wallets, d.Redis))

	// Admin routes (protected, staff only)
	admin := r.Group("/admin", tenantMW, authMW)
	admin.GET("/transactions", middleware.RequirePermission(domain.PermManageTransactions), AdminListTransactionsHandler(d.Transactions))
	admin.PATCH("/transactions/:id/status", middleware.RequirePermission(domain.PermManageTransactions), AdminTransitionTransactionHandler(d.Transactions))
	admin.GET("/withdrawals", middleware.RequirePermission(domain.PermManageWithdrawals), AdminListWithdrawalsHandler(d.Withdrawals))
	admin.PATCH("/withdrawals/:id/status", middleware.RequirePermission(domain.PermManageWithdrawals), AdminTransitionWithdrawalHandler(d.Withdrawals))
	admin.POST("/wallets/:userID/credit", middleware.RequirePermission(domain.PermManageWallets), CreditWalletHandler(d.Wallets, d.Redis))
}
