// Package testutil opens throwaway databases and seeds fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/config"
	"bank-reconciliation-backend/internal/models"
)

// OpenDB returns a migrated in-memory SQLite database private to t. A single
// connection serializes transactions the way row locks do on Postgres.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// Day returns midnight UTC of the given date.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func SeedBatch(t testing.TB, db *gorm.DB, bankAccountID uuid.UUID) *models.ReconciliationBatch {
	t.Helper()
	batch := &models.ReconciliationBatch{
		ID:            uuid.New(),
		BankAccountID: bankAccountID,
		PeriodStart:   Day(2024, 1, 1),
		PeriodEnd:     Day(2024, 1, 31),
		Status:        models.BatchStatusOpen,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}

// SeedLine inserts a PENDING line into batch and counts it as unreconciled,
// as the importer would.
func SeedLine(t testing.TB, db *gorm.DB, batch *models.ReconciliationBatch, class models.Classification, amount string, date time.Time) *models.StatementLine {
	t.Helper()
	desc := "LINE " + uuid.NewString()[:8]
	line := &models.StatementLine{
		ID:             uuid.New(),
		BankAccountID:  batch.BankAccountID,
		BatchID:        batch.ID,
		Date:           date,
		Description:    desc,
		Classification: class,
		Amount:         Amount(amount),
		Fingerprint:    models.Fingerprint(date, Amount(amount), desc),
		Status:         models.LineStatusPending,
	}
	require.NoError(t, db.Create(line).Error)
	require.NoError(t, db.Model(&models.ReconciliationBatch{}).
		Where("id = ?", batch.ID).
		Update("total_unreconciled", gorm.Expr("total_unreconciled + 1")).Error)
	return line
}

func SeedPayment(t testing.TB, db *gorm.DB, amount string, paidAt time.Time, status string) *models.Payment {
	t.Helper()
	p := &models.Payment{ID: uuid.New(), Amount: Amount(amount), PaidAt: paidAt, Status: status, Reference: "PAY-" + amount}
	require.NoError(t, db.Create(p).Error)
	return p
}

func SeedExpense(t testing.TB, db *gorm.DB, amount string, date time.Time) *models.Expense {
	t.Helper()
	e := &models.Expense{ID: uuid.New(), Amount: Amount(amount), Date: date, Reference: "EXP-" + amount}
	require.NoError(t, db.Create(e).Error)
	return e
}

func SeedInvoice(t testing.TB, db *gorm.DB, amount string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: "INV-" + uuid.NewString()[:8],
		CustomerName:  "ACME LTD",
		Amount:        Amount(amount),
		Status:        "sent",
		DueDate:       Day(2024, 1, 31),
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

func ReloadBatch(t testing.TB, db *gorm.DB, id uuid.UUID) *models.ReconciliationBatch {
	t.Helper()
	var b models.ReconciliationBatch
	require.NoError(t, db.First(&b, "id = ?", id).Error)
	return &b
}

func ReloadLine(t testing.TB, db *gorm.DB, id uuid.UUID) *models.StatementLine {
	t.Helper()
	var l models.StatementLine
	require.NoError(t, db.First(&l, "id = ?", id).Error)
	return &l
}

// AssertConsistent checks the batch counters against live rows and that every
// line is RECONCILED exactly when it carries an active match.
func AssertConsistent(t testing.TB, db *gorm.DB, batchID uuid.UUID) {
	t.Helper()
	batch := ReloadBatch(t, db, batchID)

	var lines []models.StatementLine
	require.NoError(t, db.Where("batch_id = ?", batchID).Find(&lines).Error)
	var matches []models.Match
	require.NoError(t, db.Where("batch_id = ?", batchID).Find(&matches).Error)

	byLine := make(map[uuid.UUID]models.Match, len(matches))
	var want models.BatchCounters
	for _, m := range matches {
		byLine[m.StatementLineID] = m
		if m.MatchType == models.MatchTypeManual {
			want.ManualMatchCount++
		} else {
			want.AutoMatchCount++
		}
	}
	for _, l := range lines {
		m, ok := byLine[l.ID]
		active := ok && m.Active()
		assert.Equal(t, active, l.Status == models.LineStatusReconciled, "line %s status %s", l.ID, l.Status)
		if l.Status == models.LineStatusReconciled {
			want.TotalReconciled++
		} else {
			want.TotalUnreconciled++
		}
	}
	assert.Equal(t, want, batch.Counters(), "batch counters drifted from live rows")
	assert.Equal(t, len(lines), batch.TotalReconciled+batch.TotalUnreconciled)
}
