package matching

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

// PaymentSource, ExpenseSource and InvoiceSource are the read-only views of the
// collaborating subsystems.
type PaymentSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindApprovedInRange(ctx context.Context, rng repository.AmountDateRange) ([]models.Payment, error)
}

type ExpenseSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Expense, error)
	FindInRange(ctx context.Context, rng repository.AmountDateRange) ([]models.Expense, error)
}

type InvoiceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

type Sources struct {
	Payments PaymentSource
	Expenses ExpenseSource
	Invoices InvoiceSource
}

// DBSources reads the collaborator tables from the engine's own database.
func DBSources(db *gorm.DB) Sources {
	return Sources{
		Payments: repository.NewPaymentRepository(db),
		Expenses: repository.NewExpenseRepository(db),
		Invoices: repository.NewInvoiceRepository(db),
	}
}

// Candidate is a possible counterpart of a statement line.
type Candidate struct {
	TargetType  models.TargetType `json:"target_type"`
	TargetID    uuid.UUID         `json:"target_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        time.Time         `json:"date"`
	Reference   string            `json:"reference,omitempty"`
	AmountDelta decimal.Decimal   `json:"amount_delta"`
}

func (c Candidate) Target() models.Target {
	return models.Target{Type: c.TargetType, ID: c.TargetID}
}

// Finder searches the collaborator sources for counterparts of pending lines.
// It never writes.
type Finder struct {
	lines   *repository.StatementLineRepository
	matches *repository.MatchRepository
	sources Sources
	cfg     MatchingConfig
}

func NewFinder(lines *repository.StatementLineRepository, matches *repository.MatchRepository, sources Sources, cfg MatchingConfig) *Finder {
	return &Finder{lines: lines, matches: matches, sources: sources, cfg: cfg}
}

// FindCandidates returns up to MaxCandidates targets for the line, closest
// amount first and most recent first among equal amounts.
func (f *Finder) FindCandidates(ctx context.Context, lineID uuid.UUID) ([]Candidate, error) {
	line, err := f.lines.GetByID(ctx, lineID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeLineNotFound, "statement line not found")
	}
	if err := f.ensureMatchable(ctx, line); err != nil {
		return nil, err
	}
	candidates, err := f.candidatesFor(ctx, line)
	if err != nil {
		return nil, err
	}
	if len(candidates) > f.cfg.MaxCandidates {
		candidates = candidates[:f.cfg.MaxCandidates]
	}
	return candidates, nil
}

func (f *Finder) ensureMatchable(ctx context.Context, line *models.StatementLine) error {
	existing, err := f.matches.FindByLine(ctx, line.ID)
	if err != nil {
		return apperr.Store(err, "", "look up existing match")
	}
	if existing != nil {
		return apperr.AlreadyMatched(line.ID)
	}
	if line.Status != models.LineStatusPending {
		return apperr.Conflict(apperr.CodeLineNotPending, "statement line is not pending").
			WithContext("statement_line_id", line.ID.String())
	}
	return nil
}

// candidatesFor returns every unclaimed target inside the band and window,
// ranked but not truncated.
func (f *Finder) candidatesFor(ctx context.Context, line *models.StatementLine) ([]Candidate, error) {
	lo, hi := f.cfg.Band(line.Amount)
	day := models.DateOnly(line.Date)
	rng := repository.AmountDateRange{
		MinAmount: lo,
		MaxAmount: hi,
		From:      day.AddDate(0, 0, -f.cfg.DateWindowDays),
		To:        day.AddDate(0, 0, f.cfg.DateWindowDays+1).Add(-time.Nanosecond),
	}

	var (
		found      []Candidate
		targetType models.TargetType
	)
	switch line.Classification {
	case models.ClassificationCredit:
		targetType = models.TargetPayment
		payments, err := f.sources.Payments.FindApprovedInRange(ctx, rng)
		if err != nil {
			return nil, apperr.Store(err, "", "search payments")
		}
		for _, p := range payments {
			found = append(found, Candidate{TargetType: targetType, TargetID: p.ID, Amount: p.Amount, Date: p.PaidAt, Reference: p.Reference})
		}
	case models.ClassificationDebit:
		targetType = models.TargetExpense
		expenses, err := f.sources.Expenses.FindInRange(ctx, rng)
		if err != nil {
			return nil, apperr.Store(err, "", "search expenses")
		}
		for _, e := range expenses {
			found = append(found, Candidate{TargetType: targetType, TargetID: e.ID, Amount: e.Amount, Date: e.Date, Reference: e.Reference})
		}
	default:
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.TargetID)
	}
	taken, err := f.matches.MatchedTargets(ctx, targetType, ids)
	if err != nil {
		return nil, apperr.Store(err, "", "look up matched targets")
	}

	candidates := make([]Candidate, 0, len(found))
	for _, c := range found {
		if taken[c.TargetID] || !f.inWindow(line, c, lo, hi) {
			continue
		}
		c.AmountDelta = c.Amount.Sub(line.Amount).Abs()
		candidates = append(candidates, c)
	}
	rank(candidates)
	return candidates, nil
}

// inWindow re-checks the store's filter at day granularity.
func (f *Finder) inWindow(line *models.StatementLine, c Candidate, lo, hi decimal.Decimal) bool {
	if c.Amount.LessThan(lo) || c.Amount.GreaterThan(hi) {
		return false
	}
	return absDays(line.Date, c.Date) <= f.cfg.DateWindowDays
}

func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cmp := cs[i].AmountDelta.Cmp(cs[j].AmountDelta); cmp != 0 {
			return cmp < 0
		}
		if !cs[i].Date.Equal(cs[j].Date) {
			return cs[i].Date.After(cs[j].Date)
		}
		return cs[i].TargetID.String() < cs[j].TargetID.String()
	})
}

func absDays(a, b time.Time) int {
	d := int(models.DateOnly(a).Sub(models.DateOnly(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
