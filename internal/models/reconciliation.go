package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchStatusOpen      BatchStatus = "OPEN"
	BatchStatusInReview  BatchStatus = "IN_REVIEW"
	BatchStatusCompleted BatchStatus = "COMPLETED"
)

// ReconciliationBatch is one reconciliation run for a bank account over a period.
// The counters mirror the live state of the batch's lines and matches and are
// only changed together with the rows they count.
type ReconciliationBatch struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID     uuid.UUID   `gorm:"type:uuid;not null;index" json:"bank_account_id"`
	PeriodStart       time.Time   `json:"period_start"`
	PeriodEnd         time.Time   `json:"period_end"`
	Status            BatchStatus `gorm:"size:16;not null;index" json:"status"`
	TotalReconciled   int         `gorm:"not null;default:0" json:"total_reconciled"`
	TotalUnreconciled int         `gorm:"not null;default:0" json:"total_unreconciled"`
	AutoMatchCount    int         `gorm:"not null;default:0" json:"auto_match_count"`
	ManualMatchCount  int         `gorm:"not null;default:0" json:"manual_match_count"`
	CompletedAt       *time.Time  `json:"completed_at"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// BatchCounters is a signed change to the four batch counters.
type BatchCounters struct {
	TotalReconciled   int `json:"total_reconciled"`
	TotalUnreconciled int `json:"total_unreconciled"`
	AutoMatchCount    int `json:"auto_match_count"`
	ManualMatchCount  int `json:"manual_match_count"`
}

func (c BatchCounters) IsZero() bool {
	return c == BatchCounters{}
}

func (b *ReconciliationBatch) Counters() BatchCounters {
	return BatchCounters{
		TotalReconciled:   b.TotalReconciled,
		TotalUnreconciled: b.TotalUnreconciled,
		AutoMatchCount:    b.AutoMatchCount,
		ManualMatchCount:  b.ManualMatchCount,
	}
}
