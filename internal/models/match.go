package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MatchType string

const (
	MatchTypeAutoExact       MatchType = "AUTO_EXACT"
	MatchTypeAutoApproximate MatchType = "AUTO_APPROXIMATE"
	MatchTypeManual          MatchType = "MANUAL"
)

func (t MatchType) IsAutomatic() bool {
	return t == MatchTypeAutoExact || t == MatchTypeAutoApproximate
}

type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "NOT_REQUIRED"
	ApprovalPending     ApprovalStatus = "PENDING_APPROVAL"
	ApprovalApproved    ApprovalStatus = "APPROVED"
)

type TargetType string

const (
	TargetPayment TargetType = "PAYMENT"
	TargetExpense TargetType = "EXPENSE"
	TargetInvoice TargetType = "INVOICE"
)

var ErrInvalidTarget = errors.New("match target must reference exactly one payment, expense or invoice")

// Target is the internal record a statement line is matched to. It always names
// exactly one record of one kind.
type Target struct {
	Type TargetType `gorm:"column:target_type;size:16;not null;index:idx_match_target,priority:1" json:"target_type"`
	ID   uuid.UUID  `gorm:"column:target_id;type:uuid;not null;index:idx_match_target,priority:2" json:"target_id"`
}

func NewTarget(t TargetType, id uuid.UUID) (Target, error) {
	switch t {
	case TargetPayment, TargetExpense, TargetInvoice:
	default:
		return Target{}, ErrInvalidTarget
	}
	if id == uuid.Nil {
		return Target{}, ErrInvalidTarget
	}
	return Target{Type: t, ID: id}, nil
}

func PaymentTarget(id uuid.UUID) (Target, error) { return NewTarget(TargetPayment, id) }
func ExpenseTarget(id uuid.UUID) (Target, error) { return NewTarget(TargetExpense, id) }
func InvoiceTarget(id uuid.UUID) (Target, error) { return NewTarget(TargetInvoice, id) }

// TargetFromRefs builds a Target from the three optional references an operator
// may send. Exactly one must be set.
func TargetFromRefs(paymentID, expenseID, invoiceID *uuid.UUID) (Target, error) {
	var (
		target Target
		set    int
		err    error
	)
	if paymentID != nil {
		set++
		target, err = PaymentTarget(*paymentID)
	}
	if expenseID != nil {
		set++
		target, err = ExpenseTarget(*expenseID)
	}
	if invoiceID != nil {
		set++
		target, err = InvoiceTarget(*invoiceID)
	}
	if set != 1 || err != nil {
		return Target{}, ErrInvalidTarget
	}
	return target, nil
}

// Match links one statement line to one target. The unique index on
// StatementLineID is what keeps a line from being matched twice.
type Match struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	StatementLineID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"statement_line_id"`
	Target          Target          `gorm:"embedded" json:"target"`
	MatchType       MatchType       `gorm:"size:24;not null;index" json:"match_type"`
	ApprovalStatus  ApprovalStatus  `gorm:"size:24;not null" json:"approval_status"`
	Confidence      decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"confidence"`
	AmountDelta     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount_delta"`
	Notes           string          `json:"notes,omitempty"`
	Details         datatypes.JSON  `json:"details,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Active reports whether the match reconciles its line. A pending approximate
// match reserves the line without reconciling it.
func (m *Match) Active() bool {
	return m.ApprovalStatus != ApprovalPending
}
