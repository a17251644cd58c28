package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Classification string

const (
	ClassificationCredit Classification = "CREDIT"
	ClassificationDebit  Classification = "DEBIT"
)

// ParseClassification accepts CREDIT/DEBIT in any case plus the CR/DR shorthands.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT", "CR", "C":
		return ClassificationCredit, true
	case "DEBIT", "DR", "D":
		return ClassificationDebit, true
	}
	return "", false
}

type LineStatus string

const (
	LineStatusPending    LineStatus = "PENDING"
	LineStatusReconciled LineStatus = "RECONCILED"
)

// StatementLine is one movement on a bank statement. Rows are never deleted.
type StatementLine struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID  uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_line_account_fingerprint,priority:1" json:"bank_account_id"`
	BatchID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"batch_id"`
	Date           time.Time           `gorm:"column:line_date;not null;index" json:"date"`
	Description    string              `gorm:"not null" json:"description"`
	Reference      string              `json:"reference,omitempty"`
	Classification Classification      `gorm:"size:8;not null" json:"classification"`
	Amount         decimal.Decimal     `gorm:"type:numeric(18,2);not null" json:"amount"`
	Balance        decimal.NullDecimal `gorm:"type:numeric(18,2)" json:"balance"`
	Fingerprint    string              `gorm:"size:64;not null;uniqueIndex:idx_line_account_fingerprint,priority:2" json:"fingerprint"`
	Status         LineStatus          `gorm:"size:16;not null;index" json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Fingerprint derives the dedup key of a statement line from its date, amount
// and description. Two lines with the same key on one account are the same movement.
func Fingerprint(date time.Time, amount decimal.Decimal, description string) string {
	desc := strings.ToUpper(strings.Join(strings.Fields(description), " "))
	payload := DateOnly(date).Format("2006-01-02") + "|" + amount.Abs().StringFixed(2) + "|" + desc
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
