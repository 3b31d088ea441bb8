package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"invoice-reconciliation-backend/internal/apperrors"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/repository"
	service "invoice-reconciliation-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	engine *service.Engine
	log    *logrus.Logger
}

func NewReconciliationHandler(engine *service.Engine, log *logrus.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{engine: engine, log: log}
}

// respondError translates engine errors into HTTP responses. Write-back
// failures get a distinct marker so callers know the transaction stays
// unmatched and a retry is safe.
func (h *ReconciliationHandler) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(kind)})
	case apperrors.KindCurrencyMismatch:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": string(kind)})
	case apperrors.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": string(kind)})
	case apperrors.KindInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": string(kind)})
	case apperrors.KindExternalWriteBack:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  err.Error(),
			"kind":   string(kind),
			"status": "reconciliation_pending",
		})
	default:
		h.log.WithError(err).Error("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func transactionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return uuid.Nil, false
	}
	return id, true
}

// IngestTransaction accepts one normalized transaction from a bank or
// card feed and immediately runs the decision policy on it. Redelivered
// webhooks return the stored transaction and its current outcome.
func (h *ReconciliationHandler) IngestTransaction(c *gin.Context) {
	var in service.IngestInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tx, created, err := h.engine.Ingest(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	outcome, err := h.engine.Decide(c.Request.Context(), tx.ID)
	if err != nil {
		// The transaction is stored either way; report the decision
		// failure alongside it so the caller can retry the decide step.
		h.log.WithError(err).WithField("transaction", tx.ID).Warn("decide after ingest failed")
		outcome = &service.Outcome{Status: tx.Status}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"transaction": tx, "outcome": outcome})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	tenantID := c.Query("tenant")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter is required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = parsed
	}

	items, nextCursor, hasMore, err := h.engine.ListTransactions(c.Request.Context(), repository.TransactionFilter{
		TenantID: tenantID,
		Status:   c.Query("status"),
		Cursor:   c.Query("cursor"),
		Limit:    limit,
		Search:   c.Query("search"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *ReconciliationHandler) DecideTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	outcome, err := h.engine.Decide(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *ReconciliationHandler) ManualMatchTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	var payload struct {
		InvoiceID string `json:"invoice_id"`
		UserID    string `json:"user_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.InvoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invoice_id is required"})
		return
	}

	decision, err := h.engine.ApplyManualMatch(c.Request.Context(), id, payload.InvoiceID, payload.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction matched", "decision": decision})
}

func (h *ReconciliationHandler) ReverseTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	decision, err := h.engine.ReverseMatch(c.Request.Context(), id, payload.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "match reversed", "decision": decision})
}

func (h *ReconciliationHandler) IgnoreTransaction(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	decision, err := h.engine.Ignore(c.Request.Context(), id, payload.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction ignored", "decision": decision})
}

func (h *ReconciliationHandler) TransactionHistory(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	history, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": history})
}

type syncInvoice struct {
	TenantID  string `json:"tenant_id"`
	ID        string `json:"id"`
	Number    string `json:"number"`
	AmountDue string `json:"amount_due"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	DueDate   string `json:"due_date"` // RFC 3339
}

// SyncInvoices replaces the local replica rows for the submitted
// invoices. Amounts arrive as strings to avoid float rounding on the
// wire.
func (h *ReconciliationHandler) SyncInvoices(c *gin.Context) {
	var payload struct {
		Invoices []syncInvoice `json:"invoices"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(payload.Invoices) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invoices list is empty"})
		return
	}

	invoices := make([]models.InvoiceReference, 0, len(payload.Invoices))
	for _, in := range payload.Invoices {
		amount, err := decimal.NewFromString(in.AmountDue)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice " + in.ID + ": invalid amount_due"})
			return
		}
		dueDate, err := time.Parse(time.RFC3339, in.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invoice " + in.ID + ": due_date must be RFC 3339"})
			return
		}
		status := in.Status
		if status == "" {
			status = models.InvoiceOpen
		}
		invoices = append(invoices, models.InvoiceReference{
			TenantID:  in.TenantID,
			ID:        in.ID,
			Number:    in.Number,
			AmountDue: amount,
			Currency:  in.Currency,
			Status:    status,
			DueDate:   dueDate,
		})
	}

	if err := h.engine.SyncInvoices(c.Request.Context(), invoices); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": len(invoices)})
}

func (h *ReconciliationHandler) ListReviewTasks(c *gin.Context) {
	tenantID := c.Query("tenant")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter is required"})
		return
	}

	tasks, err := h.engine.ListReviewTasks(c.Request.Context(), tenantID, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tasks})
}

func (h *ReconciliationHandler) Rescan(c *gin.Context) {
	var payload struct {
		TenantID string `json:"tenant_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.engine.Rescan(c.Request.Context(), payload.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReconciliationHandler) Stats(c *gin.Context) {
	tenantID := c.Query("tenant")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter is required"})
		return
	}

	stats, err := h.engine.Stats(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
