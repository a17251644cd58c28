package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/statementfile"
)

func (h *ReconciliationHandler) StartBatch(c *gin.Context) {
	accountID, ok := uuidParam(c, "accountId")
	if !ok {
		return
	}
	var payload struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": apperr.CodeInvalidInput})
		return
	}
	start, okStart := parseDate(payload.PeriodStart)
	end, okEnd := parseDate(payload.PeriodEnd)
	if !okStart || !okEnd {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period, expected yyyy-mm-dd", "code": apperr.CodeInvalidInput})
		return
	}

	batch, err := h.importer.StartBatch(c.Request.Context(), accountID, start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

type statementLineRequest struct {
	Date           string           `json:"date"`
	Description    string           `json:"description"`
	Reference      string           `json:"reference"`
	Amount         *decimal.Decimal `json:"amount"`
	Classification string           `json:"classification"`
	Balance        *decimal.Decimal `json:"balance"`
}

func (r statementLineRequest) raw() importer.RawLine {
	line := importer.RawLine{
		Description:    r.Description,
		Reference:      r.Reference,
		Amount:         r.Amount,
		Classification: r.Classification,
		Balance:        r.Balance,
	}
	// an unparseable date is reported by the importer as a missing one
	if d, ok := parseDate(r.Date); ok {
		line.Date = &d
	}
	return line
}

// ImportLines accepts statement lines as JSON.
func (h *ReconciliationHandler) ImportLines(c *gin.Context) {
	accountID, ok := uuidParam(c, "accountId")
	if !ok {
		return
	}
	var payload struct {
		BatchID *uuid.UUID             `json:"batch_id"`
		Lines   []statementLineRequest `json:"lines"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": apperr.CodeInvalidInput})
		return
	}

	raw := make([]importer.RawLine, 0, len(payload.Lines))
	for _, l := range payload.Lines {
		raw = append(raw, l.raw())
	}
	result, err := h.importer.ImportLines(c.Request.Context(), accountID, raw, importer.ImportOptions{
		BatchID: payload.BatchID,
		Actor:   actor(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadStatement imports a CSV or XLSX statement file sent as multipart form
// field "file". An optional "batch_id" form field selects the batch.
func (h *ReconciliationHandler) UploadStatement(c *gin.Context) {
	accountID, ok := uuidParam(c, "accountId")
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required", "code": apperr.CodeInvalidInput})
		return
	}
	defer file.Close()

	opts := importer.ImportOptions{Actor: actor(c)}
	if s := c.PostForm("batch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_id", "code": apperr.CodeInvalidInput})
			return
		}
		opts.BatchID = &id
	}

	raw, err := statementfile.Parse(file, header.Filename)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, statementfile.ErrUnsupportedFile) {
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": apperr.CodeInvalidInput})
		return
	}
	h.log.WithFields(logrus.Fields{
		"file": header.Filename,
		"size": header.Size,
		"rows": len(raw),
	}).Info("statement file received")

	result, err := h.importer.ImportLines(c.Request.Context(), accountID, raw, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file":   header.Filename,
		"result": result,
	})
}

func (h *ReconciliationHandler) FindCandidates(c *gin.Context) {
	lineID, ok := uuidParam(c, "lineId")
	if !ok {
		return
	}
	candidates, err := h.engine.Finder().FindCandidates(c.Request.Context(), lineID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": candidates})
}
