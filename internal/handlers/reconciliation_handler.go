package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	service "bank-reconciliation-backend/internal/services/reconciliation"
)

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	batch, err := h.service.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *ReconciliationHandler) ListLines(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "code": apperr.CodeInvalidInput})
			return
		}
		limit = n
	}

	page, err := h.service.ListLines(c.Request.Context(), batchID, repository.LineFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ReconciliationHandler) VerifyCounters(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	report, err := h.service.VerifyCounters(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CreateMatch records a manual match. Exactly one of payment_id, expense_id
// and invoice_id must be set.
func (h *ReconciliationHandler) CreateMatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	var payload struct {
		StatementLineID uuid.UUID  `json:"statement_line_id"`
		PaymentID       *uuid.UUID `json:"payment_id"`
		ExpenseID       *uuid.UUID `json:"expense_id"`
		InvoiceID       *uuid.UUID `json:"invoice_id"`
		Notes           string     `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.StatementLineID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": apperr.CodeInvalidInput})
		return
	}
	target, err := models.TargetFromRefs(payload.PaymentID, payload.ExpenseID, payload.InvoiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalidTarget})
		return
	}

	match, err := h.engine.CreateManualMatch(c.Request.Context(), batchID, payload.StatementLineID, target, payload.Notes, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

func (h *ReconciliationHandler) AutoMatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	summary, err := h.engine.AutoMatchBatch(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReconciliationHandler) ApproveMatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "matchId")
	if !ok {
		return
	}
	match, err := h.service.ApproveMatch(c.Request.Context(), batchID, matchID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *ReconciliationHandler) RejectMatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "matchId")
	if !ok {
		return
	}
	if err := h.service.RejectMatch(c.Request.Context(), batchID, matchID, actor(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *ReconciliationHandler) CompleteBatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	var opts service.CompleteOptions
	// the body is optional; chunked requests report an unknown length of -1
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": apperr.CodeInvalidInput})
			return
		}
	}
	batch, err := h.service.CompleteBatch(c.Request.Context(), batchID, opts, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
