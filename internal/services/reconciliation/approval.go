package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/models"
)

// ApproveMatch confirms a pending approximate match and reconciles its line.
func (s *Service) ApproveMatch(ctx context.Context, batchID, matchID uuid.UUID, actor string) (*models.Match, error) {
	var approved *models.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.matches.WithTx(tx).GetForUpdate(ctx, matchID)
		if err != nil {
			return apperr.Store(err, apperr.CodeMatchNotFound, "match not found")
		}
		if m.BatchID != batchID {
			return matchBatchMismatch(batchID, matchID)
		}
		if m.MatchType != models.MatchTypeAutoApproximate {
			return apperr.Conflict(apperr.CodeNotApprovable, "only approximate matches need approval").
				WithContext("match_type", string(m.MatchType))
		}
		if m.ApprovalStatus != models.ApprovalPending {
			return apperr.Conflict(apperr.CodeNotApprovable, "match is not awaiting approval").
				WithContext("approval_status", string(m.ApprovalStatus))
		}

		line, err := s.lines.WithTx(tx).GetForUpdate(ctx, m.StatementLineID)
		if err != nil {
			return apperr.Store(err, apperr.CodeLineNotFound, "statement line not found")
		}

		if err := s.matches.WithTx(tx).UpdateApproval(ctx, m.ID, models.ApprovalApproved); err != nil {
			return err
		}
		m.ApprovalStatus = models.ApprovalApproved

		var delta models.BatchCounters
		if line.Status != models.LineStatusReconciled {
			if err := s.lines.WithTx(tx).UpdateStatus(ctx, line.ID, models.LineStatusReconciled); err != nil {
				return err
			}
			delta.TotalReconciled = 1
			delta.TotalUnreconciled = -1
		}
		if err := s.batches.WithTx(tx).ApplyDelta(ctx, m.BatchID, delta); err != nil {
			return err
		}
		approved = m
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeBatchNotFound, "approve match")
	}

	s.logTransition(approved, "match approved")
	s.emit(ctx, models.AuditMatchApproved, approved, actor)
	return approved, nil
}

// RejectMatch discards an automatic match and returns its line to PENDING.
// Counter adjustments follow the match's type and the line's status as they
// were before the rejection.
func (s *Service) RejectMatch(ctx context.Context, batchID, matchID uuid.UUID, actor string) error {
	var rejected *models.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.matches.WithTx(tx).GetForUpdate(ctx, matchID)
		if err != nil {
			return apperr.Store(err, apperr.CodeMatchNotFound, "match not found")
		}
		if m.BatchID != batchID {
			return matchBatchMismatch(batchID, matchID)
		}
		if !m.MatchType.IsAutomatic() {
			return apperr.Conflict(apperr.CodeNotRejectable, "manual matches cannot be rejected").
				WithContext("match_type", string(m.MatchType))
		}
		if m.ApprovalStatus == models.ApprovalApproved {
			return apperr.Conflict(apperr.CodeNotRejectable, "approved matches are final")
		}

		line, err := s.lines.WithTx(tx).GetForUpdate(ctx, m.StatementLineID)
		if err != nil {
			return apperr.Store(err, apperr.CodeLineNotFound, "statement line not found")
		}

		if err := s.matches.WithTx(tx).Delete(ctx, m.ID); err != nil {
			return err
		}

		delta := models.BatchCounters{AutoMatchCount: -1}
		if line.Status == models.LineStatusReconciled {
			if err := s.lines.WithTx(tx).UpdateStatus(ctx, line.ID, models.LineStatusPending); err != nil {
				return err
			}
			delta.TotalReconciled = -1
			delta.TotalUnreconciled = 1
		}
		if err := s.batches.WithTx(tx).ApplyDelta(ctx, m.BatchID, delta); err != nil {
			return err
		}
		rejected = m
		return nil
	})
	if err != nil {
		return apperr.Store(err, apperr.CodeBatchNotFound, "reject match")
	}

	s.logTransition(rejected, "match rejected")
	s.emit(ctx, models.AuditMatchRejected, rejected, actor)
	return nil
}

func (s *Service) logTransition(m *models.Match, msg string) {
	s.log.WithFields(logrus.Fields{
		"batch_id":          m.BatchID,
		"statement_line_id": m.StatementLineID,
		"match_id":          m.ID,
		"match_type":        m.MatchType,
	}).Info(msg)
}

func (s *Service) emit(ctx context.Context, action models.AuditAction, m *models.Match, actor string) {
	lineID, matchID, target := m.StatementLineID, m.ID, m.Target
	audit.Emit(ctx, s.sink, s.log, audit.Event{
		Action:          action,
		BatchID:         m.BatchID,
		StatementLineID: &lineID,
		MatchID:         &matchID,
		MatchType:       m.MatchType,
		Target:          &target,
		Actor:           actor,
		Payload:         map[string]interface{}{"confidence": m.Confidence.String()},
	})
}
