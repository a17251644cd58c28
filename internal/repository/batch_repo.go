package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

// BatchRepository owns every write to batch counters.
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) WithTx(tx *gorm.DB) *BatchRepository {
	return &BatchRepository{db: tx}
}

func (r *BatchRepository) Create(ctx context.Context, batch *models.ReconciliationBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	if err := lockForUpdate(r.db.WithContext(ctx)).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// LatestOpenForAccount returns the most recently created batch of the account
// that is not COMPLETED.
func (r *BatchRepository) LatestOpenForAccount(ctx context.Context, bankAccountID uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ? AND status <> ?", bankAccountID, models.BatchStatusCompleted).
		Order("created_at DESC").
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListUnfinished returns the batches that are not COMPLETED, oldest first.
func (r *BatchRepository) ListUnfinished(ctx context.Context) ([]models.ReconciliationBatch, error) {
	var batches []models.ReconciliationBatch
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.BatchStatusCompleted).
		Order("created_at ASC").
		Find(&batches).Error
	return batches, err
}

// ApplyDelta adds d to the batch counters in a single UPDATE so concurrent
// writers never lose an increment.
func (r *BatchRepository) ApplyDelta(ctx context.Context, id uuid.UUID, d models.BatchCounters) error {
	if d.IsZero() {
		return nil
	}
	updates := map[string]interface{}{}
	if d.TotalReconciled != 0 {
		updates["total_reconciled"] = gorm.Expr("total_reconciled + ?", d.TotalReconciled)
	}
	if d.TotalUnreconciled != 0 {
		updates["total_unreconciled"] = gorm.Expr("total_unreconciled + ?", d.TotalUnreconciled)
	}
	if d.AutoMatchCount != 0 {
		updates["auto_match_count"] = gorm.Expr("auto_match_count + ?", d.AutoMatchCount)
	}
	if d.ManualMatchCount != 0 {
		updates["manual_match_count"] = gorm.Expr("manual_match_count + ?", d.ManualMatchCount)
	}

	res := r.db.WithContext(ctx).
		Model(&models.ReconciliationBatch{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StampCompletion overwrites the counters with recomputed values and records
// the completion outcome.
func (r *BatchRepository) StampCompletion(ctx context.Context, id uuid.UUID, c models.BatchCounters, status models.BatchStatus, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.ReconciliationBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_reconciled":   c.TotalReconciled,
			"total_unreconciled": c.TotalUnreconciled,
			"auto_match_count":   c.AutoMatchCount,
			"manual_match_count": c.ManualMatchCount,
			"status":             status,
			"completed_at":       at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
