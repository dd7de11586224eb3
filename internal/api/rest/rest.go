package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-custody-ledger/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, auth *middleware.Authenticator) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	requireCaller := middleware.Auth(auth)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Registry
		v1.GET("/registry", handler.GetRegistry)
		v1.PUT("/registry/admin", requireCaller, handler.TransferAdmin)

		// Shops
		v1.GET("/shops", handler.ListShops)
		v1.GET("/shops/:address", handler.GetShop)
		v1.PUT("/shops/:address", requireCaller, handler.SetShopAuthorization)

		// Accounts
		v1.GET("/accounts/:address/role", handler.GetRole)
		v1.GET("/accounts/:address/tokens", handler.ListOwnedTokens)
		v1.GET("/accounts/:address/transfers", handler.ListPendingTransfers)

		// Tokens
		v1.POST("/tokens", requireCaller, handler.IssueToken)
		v1.GET("/tokens/:id", handler.GetToken)
		v1.GET("/tokens/:id/history", handler.GetHistory)
		v1.PUT("/tokens/:id/serial", requireCaller, handler.SetSerial)
		v1.GET("/tokens/:id/serial/verify", handler.VerifySerial)

		// Transfer protocol
		v1.GET("/tokens/:id/transfer", handler.GetTransferStatus)
		transfer := v1.Group("/tokens/:id/transfer", requireCaller)
		{
			transfer.POST("/request", handler.RequestTransfer)
			transfer.POST("/approve", handler.ApproveTransfer)
			transfer.POST("/cancel", handler.CancelTransfer)
			transfer.POST("/emergency", handler.EmergencyTransfer)
			transfer.POST("/direct", handler.DirectTransfer)
		}

		// Serials
		v1.GET("/serials/:hash", handler.LookupSerial)
		v1.GET("/serials/:hash/exists", handler.SerialExists)

		// Notification feed
		v1.GET("/notifications", handler.GetNotifications)
	}
}
