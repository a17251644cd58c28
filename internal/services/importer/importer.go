package importer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

// RawLine is one statement row as received from a file or API client.
// Required fields are pointers so a missing value can be told apart from zero.
type RawLine struct {
	Date           *time.Time       `json:"date"`
	Description    string           `json:"description"`
	Reference      string           `json:"reference"`
	Amount         *decimal.Decimal `json:"amount"`
	Classification string           `json:"classification"`
	Balance        *decimal.Decimal `json:"balance"`
}

// RowError explains why a row was skipped.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportOptions struct {
	// BatchID attaches the lines to an existing batch. When nil the account's
	// latest unfinished batch is used, or a new one is opened.
	BatchID *uuid.UUID
	Actor   string
}

type ImportResult struct {
	BatchID    uuid.UUID  `json:"batch_id"`
	Imported   int        `json:"imported"`
	Duplicates int        `json:"duplicates"`
	Rejected   []RowError `json:"rejected"`
	Total      int        `json:"total"`
}

type Service struct {
	db      *gorm.DB
	lines   *repository.StatementLineRepository
	batches *repository.BatchRepository
	sink    audit.Sink
	log     logrus.FieldLogger
}

func NewService(db *gorm.DB, sink audit.Sink, log logrus.FieldLogger) *Service {
	return &Service{
		db:      db,
		lines:   repository.NewStatementLineRepository(db),
		batches: repository.NewBatchRepository(db),
		sink:    sink,
		log:     logger.Component(log, "importer"),
	}
}

// StartBatch opens a new reconciliation batch for the account and period.
func (s *Service) StartBatch(ctx context.Context, bankAccountID uuid.UUID, periodStart, periodEnd time.Time) (*models.ReconciliationBatch, error) {
	if bankAccountID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "bank account id is required")
	}
	if periodStart.IsZero() || periodEnd.IsZero() || periodEnd.Before(periodStart) {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "period end must not precede period start")
	}
	batch := &models.ReconciliationBatch{
		ID:            uuid.New(),
		BankAccountID: bankAccountID,
		PeriodStart:   models.DateOnly(periodStart),
		PeriodEnd:     models.DateOnly(periodEnd),
		Status:        models.BatchStatusOpen,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, apperr.Store(err, "", "create batch")
	}
	s.log.WithFields(logrus.Fields{"batch_id": batch.ID, "bank_account_id": bankAccountID}).Info("batch started")
	return batch, nil
}

// ImportLines validates and stores statement lines. Invalid rows are skipped
// and reported, duplicates are counted, and only store failures abort.
func (s *Service) ImportLines(ctx context.Context, bankAccountID uuid.UUID, raw []RawLine, opts ImportOptions) (*ImportResult, error) {
	if bankAccountID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "bank account id is required")
	}

	result := &ImportResult{Total: len(raw), Rejected: []RowError{}}
	valid := make([]models.StatementLine, 0, len(raw))
	for i, r := range raw {
		line, reason := normalize(r)
		if reason != "" {
			result.Rejected = append(result.Rejected, RowError{Row: i + 1, Reason: reason})
			continue
		}
		line.BankAccountID = bankAccountID
		valid = append(valid, line)
	}

	if len(valid) == 0 {
		if opts.BatchID != nil {
			result.BatchID = *opts.BatchID
		}
		return result, nil
	}

	batch, err := s.resolveBatch(ctx, bankAccountID, valid, opts.BatchID)
	if err != nil {
		return nil, err
	}
	result.BatchID = batch.ID

	for i := range valid {
		line := valid[i]
		line.ID = uuid.New()
		line.BatchID = batch.ID
		line.Status = models.LineStatusPending

		inserted, err := s.insertLine(ctx, &line)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Imported++
		} else {
			result.Duplicates++
		}
	}

	s.log.WithFields(logrus.Fields{
		"batch_id":   batch.ID,
		"imported":   result.Imported,
		"duplicates": result.Duplicates,
		"rejected":   len(result.Rejected),
	}).Info("statement lines imported")

	if result.Imported > 0 {
		audit.Emit(ctx, s.sink, s.log, audit.Event{
			Action:  models.AuditLinesImported,
			BatchID: batch.ID,
			Actor:   opts.Actor,
			Payload: map[string]interface{}{
				"imported":   result.Imported,
				"duplicates": result.Duplicates,
				"rejected":   len(result.Rejected),
			},
		})
	}
	return result, nil
}

// insertLine stores one line and counts it as unreconciled in the same
// transaction. A fingerprint conflict leaves everything untouched.
func (s *Service) insertLine(ctx context.Context, line *models.StatementLine) (bool, error) {
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.lines.WithTx(tx).InsertIfAbsent(ctx, line)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true
		return s.batches.WithTx(tx).ApplyDelta(ctx, line.BatchID, models.BatchCounters{TotalUnreconciled: 1})
	})
	if err != nil {
		return false, apperr.Store(err, apperr.CodeBatchNotFound, "insert statement line")
	}
	return inserted, nil
}

func (s *Service) resolveBatch(ctx context.Context, bankAccountID uuid.UUID, lines []models.StatementLine, batchID *uuid.UUID) (*models.ReconciliationBatch, error) {
	if batchID != nil {
		batch, err := s.batches.GetByID(ctx, *batchID)
		if err != nil {
			return nil, apperr.Store(err, apperr.CodeBatchNotFound, "batch not found")
		}
		if batch.BankAccountID != bankAccountID {
			return nil, apperr.Conflict(apperr.CodeBatchMismatch, "batch belongs to another bank account").
				WithContext("batch_id", batch.ID.String())
		}
		return batch, nil
	}

	batch, err := s.batches.LatestOpenForAccount(ctx, bankAccountID)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Store(err, "", "find open batch")
	}

	start, end := lines[0].Date, lines[0].Date
	for _, l := range lines[1:] {
		if l.Date.Before(start) {
			start = l.Date
		}
		if l.Date.After(end) {
			end = l.Date
		}
	}
	return s.StartBatch(ctx, bankAccountID, start, end)
}

// normalize converts a raw row into a line, or returns why it was rejected.
func normalize(r RawLine) (models.StatementLine, string) {
	if r.Date == nil || r.Date.IsZero() {
		return models.StatementLine{}, "missing date"
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return models.StatementLine{}, "missing description"
	}
	if r.Amount == nil || r.Amount.IsZero() {
		return models.StatementLine{}, "missing amount"
	}
	class, ok := models.ParseClassification(r.Classification)
	if !ok {
		return models.StatementLine{}, "unrecognized classification " + strings.TrimSpace(r.Classification)
	}

	date := models.DateOnly(*r.Date)
	amount := r.Amount.Abs().Round(2)
	line := models.StatementLine{
		Date:           date,
		Description:    desc,
		Reference:      strings.TrimSpace(r.Reference),
		Classification: class,
		Amount:         amount,
		Fingerprint:    models.Fingerprint(date, amount, desc),
	}
	if r.Balance != nil {
		line.Balance = decimal.NullDecimal{Decimal: *r.Balance, Valid: true}
	}
	return line, ""
}
