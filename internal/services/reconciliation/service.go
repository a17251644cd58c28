package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/ledger"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

// Service runs the approval workflow for approximate matches and coordinates
// batch completion.
type Service struct {
	db      *gorm.DB
	lines   *repository.StatementLineRepository
	batches *repository.BatchRepository
	matches *repository.MatchRepository
	ledger  ledger.Poster
	sink    audit.Sink
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewService(db *gorm.DB, poster ledger.Poster, sink audit.Sink, log logrus.FieldLogger) *Service {
	return &Service{
		db:      db,
		lines:   repository.NewStatementLineRepository(db),
		batches: repository.NewBatchRepository(db),
		matches: repository.NewMatchRepository(db),
		ledger:  poster,
		sink:    sink,
		log:     logger.Component(log, "reconciliation"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) (*models.ReconciliationBatch, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeBatchNotFound, "batch not found")
	}
	return batch, nil
}

type LinePage struct {
	Items      []models.StatementLine `json:"items"`
	NextCursor string                 `json:"next_cursor"`
	HasMore    bool                   `json:"has_more"`
}

// ListLines pages through a batch's statement lines.
func (s *Service) ListLines(ctx context.Context, batchID uuid.UUID, filter repository.LineFilter) (*LinePage, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	items, next, more, err := s.lines.List(ctx, batchID, filter)
	if err != nil {
		return nil, apperr.Store(err, "", "list statement lines")
	}
	return &LinePage{Items: items, NextCursor: next, HasMore: more}, nil
}

func (s *Service) GetMatch(ctx context.Context, batchID, matchID uuid.UUID) (*models.Match, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeMatchNotFound, "match not found")
	}
	if m.BatchID != batchID {
		return nil, matchBatchMismatch(batchID, matchID)
	}
	return m, nil
}

func matchBatchMismatch(batchID, matchID uuid.UUID) error {
	return apperr.Conflict(apperr.CodeBatchMismatch, "match does not belong to batch").
		WithContext("batch_id", batchID.String()).
		WithContext("match_id", matchID.String())
}
