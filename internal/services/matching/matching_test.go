package matching

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/apperr"
	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/testutil"
)

type fixture struct {
	db     *gorm.DB
	engine *Engine
	audit  *audit.Recorder
	batch  *models.ReconciliationBatch
}

func newFixture(t *testing.T) *fixture {
	db := testutil.OpenDB(t)
	rec := &audit.Recorder{}
	sources := Sources{
		Payments: repository.NewPaymentRepository(db),
		Expenses: repository.NewExpenseRepository(db),
		Invoices: repository.NewInvoiceRepository(db),
	}
	return &fixture{
		db:     db,
		engine: NewEngine(db, sources, DefaultMatchingConfig(), rec, logger.Discard()),
		audit:  rec,
		batch:  testutil.SeedBatch(t, db, uuid.New()),
	}
}

var day = testutil.Day(2024, 3, 15)

func TestFindCandidatesRanksByAmountDelta(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "1000.00", day)
	p1050 := testutil.SeedPayment(t, f.db, "1050.00", day.AddDate(0, 0, 2), models.PaymentStatusApproved)
	p980 := testutil.SeedPayment(t, f.db, "980.00", day.AddDate(0, 0, -5), models.PaymentStatusApproved)
	testutil.SeedPayment(t, f.db, "1200.00", day.AddDate(0, 0, 1), models.PaymentStatusApproved)

	candidates, err := f.engine.Finder().FindCandidates(context.Background(), line.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, p980.ID, candidates[0].TargetID)
	assert.Equal(t, models.TargetPayment, candidates[0].TargetType)
	assert.True(t, candidates[0].AmountDelta.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "PAY-980.00", candidates[0].Reference)
	assert.Equal(t, p1050.ID, candidates[1].TargetID)
	assert.True(t, candidates[1].AmountDelta.Equal(decimal.NewFromInt(50)))
}

func TestFindCandidatesFiltersAndTieBreaks(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "500.00", day)

	older := testutil.SeedPayment(t, f.db, "510.00", day.AddDate(0, 0, -3), models.PaymentStatusApproved)
	newer := testutil.SeedPayment(t, f.db, "490.00", day.AddDate(0, 0, 4), models.PaymentStatusApproved)
	edge := testutil.SeedPayment(t, f.db, "550.00", day.AddDate(0, 0, 30), models.PaymentStatusApproved)
	testutil.SeedPayment(t, f.db, "500.00", day.AddDate(0, 0, 31), models.PaymentStatusApproved)
	testutil.SeedPayment(t, f.db, "500.00", day, "PENDING")
	testutil.SeedPayment(t, f.db, "449.99", day, models.PaymentStatusApproved)
	testutil.SeedExpense(t, f.db, "500.00", day)
	farther := testutil.SeedPayment(t, f.db, "540.00", day.AddDate(0, 0, -30), models.PaymentStatusApproved)

	candidates, err := f.engine.Finder().FindCandidates(context.Background(), line.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	// equal deltas: most recent first
	assert.Equal(t, newer.ID, candidates[0].TargetID)
	assert.Equal(t, older.ID, candidates[1].TargetID)
	assert.Equal(t, farther.ID, candidates[2].TargetID)
	for _, c := range candidates {
		assert.NotEqual(t, edge.ID, c.TargetID)
	}
}

func TestFindCandidatesDebitSearchesExpenses(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationDebit, "75.00", day)
	expense := testutil.SeedExpense(t, f.db, "74.00", day.AddDate(0, 0, -1))
	testutil.SeedPayment(t, f.db, "75.00", day, models.PaymentStatusApproved)

	candidates, err := f.engine.Finder().FindCandidates(context.Background(), line.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.TargetExpense, candidates[0].TargetType)
	assert.Equal(t, expense.ID, candidates[0].TargetID)
}

func TestFindCandidatesExcludesMatchedTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "200.00", day)
	second := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "200.00", day)
	p := testutil.SeedPayment(t, f.db, "200.00", day, models.PaymentStatusApproved)

	target, err := models.PaymentTarget(p.ID)
	require.NoError(t, err)
	_, err = f.engine.CreateManualMatch(ctx, f.batch.ID, first.ID, target, "", "alice")
	require.NoError(t, err)

	candidates, err := f.engine.Finder().FindCandidates(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = f.engine.Finder().FindCandidates(ctx, first.ID)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyMatched))

	_, err = f.engine.Finder().FindCandidates(ctx, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateManualMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "300.00", day)
	inv := testutil.SeedInvoice(t, f.db, "310.00")

	target, err := models.InvoiceTarget(inv.ID)
	require.NoError(t, err)
	match, err := f.engine.CreateManualMatch(ctx, f.batch.ID, line.ID, target, "paid by cheque", "alice")
	require.NoError(t, err)

	assert.Equal(t, models.MatchTypeManual, match.MatchType)
	assert.Equal(t, models.ApprovalNotRequired, match.ApprovalStatus)
	assert.True(t, match.Confidence.Equal(decimal.NewFromInt(100)))
	assert.True(t, match.AmountDelta.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "paid by cheque", match.Notes)

	assert.Equal(t, models.LineStatusReconciled, testutil.ReloadLine(t, f.db, line.ID).Status)
	batch := testutil.ReloadBatch(t, f.db, f.batch.ID)
	assert.Equal(t, models.BatchCounters{TotalReconciled: 1, ManualMatchCount: 1}, batch.Counters())
	testutil.AssertConsistent(t, f.db, f.batch.ID)

	require.Len(t, f.audit.Events, 1)
	assert.Equal(t, models.AuditMatchCreated, f.audit.Events[0].Action)
	assert.Equal(t, "alice", f.audit.Events[0].Actor)

	_, err = f.engine.CreateManualMatch(ctx, f.batch.ID, line.ID, target, "", "bob")
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyMatched))
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestCreateManualMatchRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationDebit, "40.00", day)
	expense := testutil.SeedExpense(t, f.db, "40.00", day)
	target, err := models.ExpenseTarget(expense.ID)
	require.NoError(t, err)

	_, err = f.engine.CreateManualMatch(ctx, f.batch.ID, line.ID, models.Target{}, "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	missing, err := models.PaymentTarget(uuid.New())
	require.NoError(t, err)
	_, err = f.engine.CreateManualMatch(ctx, f.batch.ID, line.ID, missing, "", "")
	assert.True(t, apperr.Is(err, apperr.CodeTargetNotFound))

	_, err = f.engine.CreateManualMatch(ctx, uuid.New(), line.ID, target, "", "")
	assert.True(t, apperr.Is(err, apperr.CodeBatchMismatch))

	_, err = f.engine.CreateManualMatch(ctx, f.batch.ID, uuid.New(), target, "", "")
	assert.True(t, apperr.Is(err, apperr.CodeLineNotFound))

	assert.Equal(t, models.LineStatusPending, testutil.ReloadLine(t, f.db, line.ID).Status)
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestConcurrentManualMatchesHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "800.00", day)
	p1 := testutil.SeedPayment(t, f.db, "800.00", day, models.PaymentStatusApproved)
	p2 := testutil.SeedPayment(t, f.db, "800.00", day, models.PaymentStatusApproved)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*models.Payment{p1, p2} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			target, _ := models.PaymentTarget(id)
			_, errs[i] = f.engine.CreateManualMatch(ctx, f.batch.ID, line.ID, target, "", "op")
		}(i, p.ID)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.CodeAlreadyMatched):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	var count int64
	require.NoError(t, f.db.Model(&models.Match{}).Where("statement_line_id = ?", line.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestAutoMatchLineExact(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "1000.00", day)
	testutil.SeedPayment(t, f.db, "1000.00", day.AddDate(0, 0, 3), models.PaymentStatusApproved)
	sameDay := testutil.SeedPayment(t, f.db, "1000.00", day, models.PaymentStatusApproved)

	match, err := f.engine.AutoMatchLine(context.Background(), f.batch.ID, line.ID)
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, models.MatchTypeAutoExact, match.MatchType)
	assert.Equal(t, sameDay.ID, match.Target.ID)
	assert.True(t, match.Confidence.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, models.LineStatusReconciled, testutil.ReloadLine(t, f.db, line.ID).Status)
	assert.Equal(t, models.BatchCounters{TotalReconciled: 1, AutoMatchCount: 1}, testutil.ReloadBatch(t, f.db, f.batch.ID).Counters())
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestAutoMatchLineFindsSameDayBeyondCandidateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "1000.00", day)
	sameDay := testutil.SeedPayment(t, f.db, "1000.00", day, models.PaymentStatusApproved)
	for i := 1; i <= 3; i++ {
		testutil.SeedPayment(t, f.db, "1000.00", day.AddDate(0, 0, i), models.PaymentStatusApproved)
	}

	// the operator view is still capped and ranks later payments first
	shown, err := f.engine.Finder().FindCandidates(ctx, line.ID)
	require.NoError(t, err)
	require.Len(t, shown, 3)
	for _, c := range shown {
		assert.NotEqual(t, sameDay.ID, c.TargetID)
	}

	match, err := f.engine.AutoMatchLine(ctx, f.batch.ID, line.ID)
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, models.MatchTypeAutoExact, match.MatchType)
	assert.Equal(t, sameDay.ID, match.Target.ID)
	assert.Equal(t, models.ApprovalNotRequired, match.ApprovalStatus)
	assert.Equal(t, models.LineStatusReconciled, testutil.ReloadLine(t, f.db, line.ID).Status)
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestCreateMatchUniqueIndexRejectsSecondMatch(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "320.00", day)
	p1 := testutil.SeedPayment(t, f.db, "320.00", day, models.PaymentStatusApproved)
	p2 := testutil.SeedPayment(t, f.db, "320.00", day, models.PaymentStatusApproved)
	t1, err := models.PaymentTarget(p1.ID)
	require.NoError(t, err)
	t2, err := models.PaymentTarget(p2.ID)
	require.NoError(t, err)

	match := &models.Match{
		ID:              uuid.New(),
		BatchID:         f.batch.ID,
		StatementLineID: line.ID,
		Target:          t1,
		MatchType:       models.MatchTypeManual,
		ApprovalStatus:  models.ApprovalNotRequired,
		Confidence:      decimal.NewFromInt(100),
		CreatedBy:       "op",
	}
	// a competing writer commits its match after the in-transaction check
	racer := func(tx *gorm.DB, l *models.StatementLine) error {
		return tx.Create(&models.Match{
			ID:              uuid.New(),
			BatchID:         f.batch.ID,
			StatementLineID: l.ID,
			Target:          t2,
			MatchType:       models.MatchTypeManual,
			ApprovalStatus:  models.ApprovalNotRequired,
			Confidence:      decimal.NewFromInt(100),
		}).Error
	}

	err = f.engine.createMatch(context.Background(), match, racer)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyMatched), "got %v", err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// the whole transaction rolled back, competing row included
	var count int64
	require.NoError(t, f.db.Model(&models.Match{}).Where("statement_line_id = ?", line.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, models.LineStatusPending, testutil.ReloadLine(t, f.db, line.ID).Status)
	assert.Empty(t, f.audit.Events)
	testutil.AssertConsistent(t, f.db, f.batch.ID)
}

func TestAutoMatchLineApproximateStaysPending(t *testing.T) {
	f := newFixture(t)
	line := testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "1000.00", day)
	testutil.SeedPayment(t, f.db, "980.00", day.AddDate(0, 0, -5), models.PaymentStatusApproved)

	match, err := f.engine.AutoMatchLine(context.Background(), f.batch.ID, line.ID)
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, models.MatchTypeAutoApproximate, match.MatchType)
	assert.Equal(t, models.ApprovalPending, match.ApprovalStatus)
	assert.Equal(t, "98", match.Confidence.String())
	assert.Equal(t, models.LineStatusPending, testutil.ReloadLine(t, f.db, line.ID).Status)
	assert.Equal(t, models.BatchCounters{TotalUnreconciled: 1, AutoMatchCount: 1}, testutil.ReloadBatch(t, f.db, f.batch.ID).Counters())
	testutil.AssertConsistent(t, f.db, f.batch.ID)

	_, err = f.engine.AutoMatchLine(context.Background(), f.batch.ID, line.ID)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyMatched))
}

func TestAutoMatchBatch(t *testing.T) {
	f := newFixture(t)
	testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "100.00", day)
	testutil.SeedLine(t, f.db, f.batch, models.ClassificationDebit, "60.00", day)
	testutil.SeedLine(t, f.db, f.batch, models.ClassificationCredit, "9999.00", day)
	testutil.SeedPayment(t, f.db, "100.00", day, models.PaymentStatusApproved)
	testutil.SeedExpense(t, f.db, "57.00", day.AddDate(0, 0, 2))

	summary, err := f.engine.AutoMatchBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, AutoMatchSummary{Exact: 1, Approximate: 1, Unmatched: 1}, summary)
	assert.Equal(t, models.BatchCounters{TotalReconciled: 1, TotalUnreconciled: 2, AutoMatchCount: 2}, testutil.ReloadBatch(t, f.db, f.batch.ID).Counters())
	testutil.AssertConsistent(t, f.db, f.batch.ID)

	// a second pass has nothing left to match
	summary, err = f.engine.AutoMatchBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, AutoMatchSummary{Unmatched: 1}, summary)

	_, err = f.engine.AutoMatchBatch(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.CodeBatchNotFound))
}

func TestApproximateConfidence(t *testing.T) {
	tests := []struct {
		delta, amount, want string
	}{
		{"20", "1000", "98"},
		{"50", "1000", "95"},
		{"0", "1000", "99"},
		{"1", "3", "66.67"},
		{"2000", "1000", "0"},
		{"5", "0", "0"},
	}
	for _, tt := range tests {
		got := ApproximateConfidence(decimal.RequireFromString(tt.delta), decimal.RequireFromString(tt.amount))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "delta %s amount %s: got %s", tt.delta, tt.amount, got)
	}
}

func TestDescriptionSimilarity(t *testing.T) {
	assert.Equal(t, 100.0, descriptionSimilarity("TRF FROM ACME-LTD", "acme ltd"))
	assert.Equal(t, 0.0, descriptionSimilarity("ANYTHING", ""))
	assert.Less(t, descriptionSimilarity("ACME", "ZZZZZZ"), 50.0)
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestMatchingConfigValidate(t *testing.T) {
	cfg := DefaultMatchingConfig()
	require.NoError(t, cfg.Validate())
	lo, hi := cfg.Band(decimal.NewFromInt(-1000))
	assert.True(t, lo.Equal(decimal.NewFromInt(900)))
	assert.True(t, hi.Equal(decimal.NewFromInt(1100)))

	cfg.MaxCandidates = 0
	assert.Error(t, cfg.Validate())
}
