package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	handler "bank-reconciliation-backend/internal/handlers"
)

func RegisterRoutes(r *gin.Engine, h *handler.ReconciliationHandler) {
	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Statement intake, scoped to a bank account
	accounts := api.Group("/bank-accounts/:accountId")
	accounts.POST("/batches", h.StartBatch)
	accounts.POST("/statement-lines", h.ImportLines)
	accounts.POST("/statement-lines/upload", h.UploadStatement)

	api.GET("/statement-lines/:lineId/candidates", h.FindCandidates)

	// Reconciliation batch routes
	batches := api.Group("/reconciliation/batches/:batchId")
	{
		batches.GET("", h.GetBatch)
		batches.GET("/lines", h.ListLines)
		batches.GET("/verify", h.VerifyCounters)
		batches.POST("/matches", h.CreateMatch)
		batches.POST("/auto-match", h.AutoMatch)
		batches.POST("/matches/:matchId/approve", h.ApproveMatch)
		batches.POST("/matches/:matchId/reject", h.RejectMatch)
		batches.POST("/complete", h.CompleteBatch)
	}
}
