package matching

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

var (
	hundred             = decimal.NewFromInt(100)
	maxApproxConfidence = decimal.NewFromInt(99)
)

// Engine records matches between statement lines and their targets and keeps
// line status and batch counters in step with them.
type Engine struct {
	db      *gorm.DB
	lines   *repository.StatementLineRepository
	batches *repository.BatchRepository
	matches *repository.MatchRepository
	finder  *Finder
	sources Sources
	cfg     MatchingConfig
	sink    audit.Sink
	log     logrus.FieldLogger
}

func NewEngine(db *gorm.DB, sources Sources, cfg MatchingConfig, sink audit.Sink, log logrus.FieldLogger) *Engine {
	lines := repository.NewStatementLineRepository(db)
	matches := repository.NewMatchRepository(db)
	return &Engine{
		db:      db,
		lines:   lines,
		batches: repository.NewBatchRepository(db),
		matches: matches,
		finder:  NewFinder(lines, matches, sources, cfg),
		sources: sources,
		cfg:     cfg,
		sink:    sink,
		log:     logger.Component(log, "match-engine"),
	}
}

func (e *Engine) Finder() *Finder {
	return e.finder
}

// CreateManualMatch matches a line to an operator-chosen target. Manual
// matches are final: the line is reconciled at once.
func (e *Engine) CreateManualMatch(ctx context.Context, batchID, lineID uuid.UUID, target models.Target, notes, actor string) (*models.Match, error) {
	if _, err := models.NewTarget(target.Type, target.ID); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, apperr.CodeInvalidTarget, "invalid match target")
	}
	resolved, err := e.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	match := &models.Match{
		ID:              uuid.New(),
		BatchID:         batchID,
		StatementLineID: lineID,
		Target:          target,
		MatchType:       models.MatchTypeManual,
		ApprovalStatus:  models.ApprovalNotRequired,
		Confidence:      hundred,
		Notes:           notes,
		CreatedBy:       actor,
	}
	err = e.createMatch(ctx, match, func(_ *gorm.DB, line *models.StatementLine) error {
		match.AmountDelta = resolved.Amount.Sub(line.Amount).Abs()
		match.Details = details(map[string]interface{}{
			"target_amount":     resolved.Amount.StringFixed(2),
			"date_gap_days":     absDays(line.Date, resolved.Date),
			"description_score": descriptionSimilarity(line.Description, resolved.Reference),
			"decision":          "manual",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// AutoMatchLine matches a line to its best candidate. An exact same-day amount
// reconciles the line; anything else inside the band is recorded as an
// approximate match awaiting approval. It returns nil when no candidate exists.
func (e *Engine) AutoMatchLine(ctx context.Context, batchID, lineID uuid.UUID) (*models.Match, error) {
	line, err := e.lines.GetByID(ctx, lineID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeLineNotFound, "statement line not found")
	}
	if line.BatchID != batchID {
		return nil, batchMismatch(batchID, lineID)
	}
	if err := e.finder.ensureMatchable(ctx, line); err != nil {
		return nil, err
	}

	candidates, err := e.finder.candidatesFor(ctx, line)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best, exact := e.pick(line, candidates)
	match := &models.Match{
		ID:              uuid.New(),
		BatchID:         batchID,
		StatementLineID: lineID,
		Target:          best.Target(),
		AmountDelta:     best.AmountDelta,
		CreatedBy:       "system",
	}
	decision := "approximate"
	if exact {
		decision = "exact"
		match.MatchType = models.MatchTypeAutoExact
		match.ApprovalStatus = models.ApprovalNotRequired
		match.Confidence = hundred
	} else {
		match.MatchType = models.MatchTypeAutoApproximate
		match.ApprovalStatus = models.ApprovalPending
		match.Confidence = ApproximateConfidence(best.AmountDelta, line.Amount)
	}
	match.Details = details(map[string]interface{}{
		"target_amount":     best.Amount.StringFixed(2),
		"date_gap_days":     absDays(line.Date, best.Date),
		"description_score": descriptionSimilarity(line.Description, best.Reference),
		"candidate_count":   len(candidates),
		"decision":          decision,
	})

	if err := e.createMatch(ctx, match, nil); err != nil {
		return nil, err
	}
	return match, nil
}

type AutoMatchSummary struct {
	Exact       int `json:"exact"`
	Approximate int `json:"approximate"`
	Unmatched   int `json:"unmatched"`
	Skipped     int `json:"skipped"`
}

// AutoMatchBatch runs AutoMatchLine over every unmatched pending line of the
// batch. Lines taken by a concurrent caller are skipped.
func (e *Engine) AutoMatchBatch(ctx context.Context, batchID uuid.UUID) (AutoMatchSummary, error) {
	var summary AutoMatchSummary
	if _, err := e.batches.GetByID(ctx, batchID); err != nil {
		return summary, apperr.Store(err, apperr.CodeBatchNotFound, "batch not found")
	}
	lines, err := e.lines.ListUnmatchedPending(ctx, batchID)
	if err != nil {
		return summary, apperr.Store(err, "", "list pending lines")
	}

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		m, err := e.AutoMatchLine(ctx, batchID, line.ID)
		switch {
		case apperr.Is(err, apperr.CodeAlreadyMatched), apperr.Is(err, apperr.CodeLineNotPending):
			summary.Skipped++
		case err != nil:
			return summary, err
		case m == nil:
			summary.Unmatched++
		case m.MatchType == models.MatchTypeAutoExact:
			summary.Exact++
		default:
			summary.Approximate++
		}
	}

	e.log.WithFields(logrus.Fields{
		"batch_id":    batchID,
		"exact":       summary.Exact,
		"approximate": summary.Approximate,
		"unmatched":   summary.Unmatched,
		"skipped":     summary.Skipped,
	}).Info("auto-match pass finished")
	return summary, nil
}

// ApproximateConfidence scores a non-exact match from its relative amount
// difference. Only exact matches score 100.
func ApproximateConfidence(delta, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	c := hundred.Sub(delta.Abs().Div(amount).Mul(hundred))
	if c.IsNegative() {
		c = decimal.Zero
	}
	if c.GreaterThan(maxApproxConfidence) {
		c = maxApproxConfidence
	}
	return c.Round(2)
}

// pick prefers an exact same-day candidate and falls back to the top ranked one.
func (e *Engine) pick(line *models.StatementLine, candidates []Candidate) (Candidate, bool) {
	for _, c := range candidates {
		if c.AmountDelta.LessThanOrEqual(e.cfg.ExactEpsilon) && models.SameDay(c.Date, line.Date) {
			return c, true
		}
	}
	return candidates[0], false
}

// createMatch inserts match and applies its effects on the line and the batch
// counters in one transaction. prepare runs inside the transaction with the
// locked line before insert; an error from it rolls everything back.
func (e *Engine) createMatch(ctx context.Context, match *models.Match, prepare func(*gorm.DB, *models.StatementLine) error) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines := e.lines.WithTx(tx)
		matches := e.matches.WithTx(tx)

		line, err := lines.GetForUpdate(ctx, match.StatementLineID)
		if err != nil {
			return apperr.Store(err, apperr.CodeLineNotFound, "statement line not found")
		}
		if line.BatchID != match.BatchID {
			return batchMismatch(match.BatchID, line.ID)
		}
		existing, err := matches.FindByLine(ctx, line.ID)
		if err != nil {
			return err
		}
		if existing != nil || line.Status != models.LineStatusPending {
			return apperr.AlreadyMatched(line.ID)
		}

		if prepare != nil {
			if err := prepare(tx, line); err != nil {
				return err
			}
		}
		if err := matches.Create(ctx, match); err != nil {
			if repository.IsUniqueViolation(err) {
				return apperr.AlreadyMatched(line.ID)
			}
			return err
		}

		var delta models.BatchCounters
		if match.MatchType == models.MatchTypeManual {
			delta.ManualMatchCount = 1
		} else {
			delta.AutoMatchCount = 1
		}
		if match.Active() {
			if err := lines.UpdateStatus(ctx, line.ID, models.LineStatusReconciled); err != nil {
				return err
			}
			delta.TotalReconciled = 1
			delta.TotalUnreconciled = -1
		}
		return e.batches.WithTx(tx).ApplyDelta(ctx, match.BatchID, delta)
	})
	if err != nil {
		return apperr.Store(err, apperr.CodeBatchNotFound, "create match")
	}

	lineID, matchID := match.StatementLineID, match.ID
	target := match.Target
	e.log.WithFields(logrus.Fields{
		"batch_id":          match.BatchID,
		"statement_line_id": lineID,
		"match_id":          matchID,
		"match_type":        match.MatchType,
		"confidence":        match.Confidence.String(),
	}).Info("match created")
	audit.Emit(ctx, e.sink, e.log, audit.Event{
		Action:          models.AuditMatchCreated,
		BatchID:         match.BatchID,
		StatementLineID: &lineID,
		MatchID:         &matchID,
		MatchType:       match.MatchType,
		Target:          &target,
		Actor:           match.CreatedBy,
		Payload: map[string]interface{}{
			"confidence":      match.Confidence.String(),
			"approval_status": match.ApprovalStatus,
		},
	})
	return nil
}

// targetFacts are the collaborator fields a match records about its target.
type targetFacts struct {
	Amount    decimal.Decimal
	Date      time.Time
	Reference string
}

func (e *Engine) resolveTarget(ctx context.Context, t models.Target) (*targetFacts, error) {
	notFound := func(err error) error {
		return apperr.Store(err, apperr.CodeTargetNotFound, "match target not found")
	}
	switch t.Type {
	case models.TargetPayment:
		p, err := e.sources.Payments.GetByID(ctx, t.ID)
		if err != nil {
			return nil, notFound(err)
		}
		return &targetFacts{Amount: p.Amount, Date: p.PaidAt, Reference: p.Reference}, nil
	case models.TargetExpense:
		x, err := e.sources.Expenses.GetByID(ctx, t.ID)
		if err != nil {
			return nil, notFound(err)
		}
		return &targetFacts{Amount: x.Amount, Date: x.Date, Reference: x.Reference}, nil
	case models.TargetInvoice:
		inv, err := e.sources.Invoices.GetByID(ctx, t.ID)
		if err != nil {
			return nil, notFound(err)
		}
		return &targetFacts{Amount: inv.Amount, Date: inv.DueDate, Reference: inv.InvoiceNumber + " " + inv.CustomerName}, nil
	}
	return nil, apperr.Validation(apperr.CodeInvalidTarget, "invalid match target")
}

func batchMismatch(batchID, lineID uuid.UUID) error {
	return apperr.Conflict(apperr.CodeBatchMismatch, "statement line does not belong to batch").
		WithContext("batch_id", batchID.String()).
		WithContext("statement_line_id", lineID.String())
}

func details(v map[string]interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
