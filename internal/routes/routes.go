package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	handler "invoice-reconciliation-backend/internal/handlers"
	"invoice-reconciliation-backend/internal/provider"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/matching"
	service "invoice-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, invoiceProvider provider.InvoiceProvider, cfg matching.Config, log *logrus.Logger) {
	transactionRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)
	taskRepo := repository.NewReviewTaskRepository(db)

	engine := service.NewEngine(
		transactionRepo,
		invoiceRepo,
		decisionRepo,
		taskRepo,
		invoiceProvider,
		cfg,
		log,
	)

	reconHandler := handler.NewReconciliationHandler(engine, log)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Transaction routes
	tx := api.Group("/transactions")
	tx.POST("/ingest", reconHandler.IngestTransaction)
	tx.GET("", reconHandler.ListTransactions)
	tx.POST("/:id/decide", reconHandler.DecideTransaction)
	tx.POST("/:id/match", reconHandler.ManualMatchTransaction)
	tx.POST("/:id/reverse", reconHandler.ReverseTransaction)
	tx.POST("/:id/ignore", reconHandler.IgnoreTransaction)
	tx.GET("/:id/history", reconHandler.TransactionHistory)

	// Invoice replica routes
	invoices := api.Group("/invoices")
	invoices.POST("/sync", reconHandler.SyncInvoices)

	// Review queue
	api.GET("/review-tasks", reconHandler.ListReviewTasks)

	// Reconciliation-wide operations
	recon := api.Group("/reconciliation")
	recon.POST("/rescan", reconHandler.Rescan)
	recon.GET("/stats", reconHandler.Stats)
}
