package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

// AmountDateRange bounds a candidate search. Both ends are inclusive.
type AmountDateRange struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	From      time.Time
	To        time.Time
}

// PaymentRepository reads payments owned by the payments subsystem.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindApprovedInRange returns approved payments whose amount and paid-at date
// fall inside rng.
func (r *PaymentRepository) FindApprovedInRange(ctx context.Context, rng AmountDateRange) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentStatusApproved).
		Where("amount >= ? AND amount <= ?", rng.MinAmount, rng.MaxAmount).
		Where("paid_at >= ? AND paid_at <= ?", rng.From, rng.To).
		Find(&payments).Error
	return payments, err
}

// ExpenseRepository reads expenses owned by the expenses subsystem.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	var e models.Expense
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExpenseRepository) FindInRange(ctx context.Context, rng AmountDateRange) ([]models.Expense, error) {
	var expenses []models.Expense
	err := r.db.WithContext(ctx).
		Where("amount >= ? AND amount <= ?", rng.MinAmount, rng.MaxAmount).
		Where("expense_date >= ? AND expense_date <= ?", rng.From, rng.To).
		Find(&expenses).Error
	return expenses, err
}

// InvoiceRepository reads invoices owned by the billing subsystem.
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}
