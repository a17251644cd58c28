package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice, Payment and Expense are owned by other subsystems. The engine reads
// them and never writes them.

type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNumber string          `gorm:"uniqueIndex" json:"invoice_number"`
	CustomerName  string          `gorm:"index" json:"customer_name"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);index" json:"amount"`
	Status        string          `gorm:"index" json:"status"`
	DueDate       time.Time       `json:"due_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

const PaymentStatusApproved = "APPROVED"

type Payment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);index" json:"amount"`
	PaidAt    time.Time       `gorm:"index" json:"paid_at"`
	Status    string          `gorm:"size:24;index" json:"status"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Expense struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2);index" json:"amount"`
	Date      time.Time       `gorm:"column:expense_date;index" json:"date"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
