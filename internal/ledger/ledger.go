package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bank-reconciliation-backend/internal/models"
)

// AdjustmentRequest is forwarded to the accounting ledger when a batch is
// completed with an adjustment entry requested. The engine decides nothing
// about the posting itself.
type AdjustmentRequest struct {
	BatchID       uuid.UUID
	BankAccountID uuid.UUID
	Status        models.BatchStatus
	Unreconciled  int
	RequestedBy   string
}

// Poster is the ledger collaborator.
type Poster interface {
	PostAdjustment(ctx context.Context, req AdjustmentRequest) error
}

// LogPoster records adjustment requests in the log. It stands in for the
// ledger client where none is configured.
type LogPoster struct {
	log logrus.FieldLogger
}

func NewLogPoster(log logrus.FieldLogger) *LogPoster {
	return &LogPoster{log: log}
}

func (p *LogPoster) PostAdjustment(_ context.Context, req AdjustmentRequest) error {
	p.log.WithFields(logrus.Fields{
		"batch_id":        req.BatchID,
		"bank_account_id": req.BankAccountID,
		"status":          req.Status,
		"unreconciled":    req.Unreconciled,
		"requested_by":    req.RequestedBy,
	}).Info("adjustment entry requested")
	return nil
}
