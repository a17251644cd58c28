package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/ledger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

type CompleteOptions struct {
	// CreateAdjustmentEntry is passed on to the ledger; the engine itself
	// posts nothing.
	CreateAdjustmentEntry bool `json:"create_adjustment_entry"`
}

// CompleteBatch recounts the batch from its lines and matches and marks it
// COMPLETED when nothing is pending, IN_REVIEW otherwise. It can be called any
// number of times; matches may still be added afterwards.
func (s *Service) CompleteBatch(ctx context.Context, batchID uuid.UUID, opts CompleteOptions, actor string) (*models.ReconciliationBatch, error) {
	var batch *models.ReconciliationBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batches := s.batches.WithTx(tx)
		if _, err := batches.GetForUpdate(ctx, batchID); err != nil {
			return apperr.Store(err, apperr.CodeBatchNotFound, "batch not found")
		}

		counters, err := liveCounters(ctx, s.lines.WithTx(tx), s.matches.WithTx(tx), batchID)
		if err != nil {
			return err
		}
		status := models.BatchStatusInReview
		if counters.TotalUnreconciled == 0 {
			status = models.BatchStatusCompleted
		}
		if err := batches.StampCompletion(ctx, batchID, counters, status, s.now()); err != nil {
			return err
		}
		batch, err = batches.GetByID(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeBatchNotFound, "complete batch")
	}

	s.log.WithFields(logrus.Fields{
		"batch_id":           batch.ID,
		"status":             batch.Status,
		"total_reconciled":   batch.TotalReconciled,
		"total_unreconciled": batch.TotalUnreconciled,
	}).Info("batch completion evaluated")

	if opts.CreateAdjustmentEntry && s.ledger != nil {
		err := s.ledger.PostAdjustment(ctx, ledger.AdjustmentRequest{
			BatchID:       batch.ID,
			BankAccountID: batch.BankAccountID,
			Status:        batch.Status,
			Unreconciled:  batch.TotalUnreconciled,
			RequestedBy:   actor,
		})
		if err != nil {
			s.log.WithError(err).WithField("batch_id", batch.ID).Warn("adjustment entry request failed")
		}
	}

	audit.Emit(ctx, s.sink, s.log, audit.Event{
		Action:  models.AuditBatchCompleted,
		BatchID: batch.ID,
		Actor:   actor,
		Payload: map[string]interface{}{
			"status":                  batch.Status,
			"total_reconciled":        batch.TotalReconciled,
			"total_unreconciled":      batch.TotalUnreconciled,
			"create_adjustment_entry": opts.CreateAdjustmentEntry,
		},
	})
	return batch, nil
}

// CounterReport compares stored counters with the live rows.
type CounterReport struct {
	BatchID    uuid.UUID            `json:"batch_id"`
	Stored     models.BatchCounters `json:"stored"`
	Live       models.BatchCounters `json:"live"`
	Consistent bool                 `json:"consistent"`
}

// VerifyCounters reports drift between a batch's counters and its rows
// without changing anything.
func (s *Service) VerifyCounters(ctx context.Context, batchID uuid.UUID) (*CounterReport, error) {
	report := &CounterReport{BatchID: batchID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.WithTx(tx).GetByID(ctx, batchID)
		if err != nil {
			return apperr.Store(err, apperr.CodeBatchNotFound, "batch not found")
		}
		live, err := liveCounters(ctx, s.lines.WithTx(tx), s.matches.WithTx(tx), batchID)
		if err != nil {
			return err
		}
		report.Stored = batch.Counters()
		report.Live = live
		report.Consistent = report.Stored == live
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeBatchNotFound, "verify batch counters")
	}
	if !report.Consistent {
		s.log.WithFields(logrus.Fields{
			"batch_id": batchID,
			"stored":   report.Stored,
			"live":     report.Live,
		}).Warn("batch counters drifted")
	}
	return report, nil
}

func liveCounters(ctx context.Context, lines *repository.StatementLineRepository, matches *repository.MatchRepository, batchID uuid.UUID) (models.BatchCounters, error) {
	byStatus, err := lines.CountByStatus(ctx, batchID)
	if err != nil {
		return models.BatchCounters{}, err
	}
	byType, err := matches.CountByType(ctx, batchID)
	if err != nil {
		return models.BatchCounters{}, err
	}
	return models.BatchCounters{
		TotalReconciled:   byStatus[models.LineStatusReconciled],
		TotalUnreconciled: byStatus[models.LineStatusPending],
		AutoMatchCount:    byType[models.MatchTypeAutoExact] + byType[models.MatchTypeAutoApproximate],
		ManualMatchCount:  byType[models.MatchTypeManual],
	}, nil
}
