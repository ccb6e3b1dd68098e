package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the router needs.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Accounts     *AccountHandler
	Transactions *TransactionHandler
	Health       *HealthHandler
}

// RegisterRoutes mounts the API under /api. authMiddleware guards every route
// outside /api/auth.
func RegisterRoutes(r *gin.Engine, h Handlers, authMiddleware gin.HandlerFunc) {
	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/refresh", h.Auth.RefreshToken)

	user := api.Group("/user", authMiddleware)
	user.GET("/profile", h.Users.GetProfile)
	user.GET("/accounts", h.Accounts.ListAccounts)

	accounts := api.Group("/accounts", authMiddleware)
	accounts.POST("", h.Accounts.OpenAccount)
	accounts.GET("/:accountId", h.Accounts.GetAccount)
	accounts.GET("/:accountId/balance", h.Accounts.GetBalance)
	accounts.PATCH("/:accountId/status", h.Accounts.ChangeStatus)
	accounts.POST("/:accountId/deposits", h.Transactions.Deposit)
	accounts.POST("/:accountId/withdrawals", h.Transactions.Withdraw)
	accounts.POST("/:accountId/transfers", h.Transactions.Transfer)
	accounts.GET("/:accountId/transactions", h.Transactions.ListTransactions)
	accounts.GET("/:accountId/transactions/:transactionId", h.Transactions.GetTransaction)
}
