package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/models"
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Create inserts m. A second match for the same line fails the unique index;
// callers detect that with IsUniqueViolation.
func (r *MatchRepository) Create(ctx context.Context, m *models.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var m models.Match
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var m models.Match
	if err := lockForUpdate(r.db.WithContext(ctx)).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindByLine returns the line's match or nil.
func (r *MatchRepository) FindByLine(ctx context.Context, lineID uuid.UUID) (*models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Where("statement_line_id = ?", lineID).
		Limit(1).
		Find(&matches).Error
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

func (r *MatchRepository) UpdateApproval(ctx context.Context, id uuid.UUID, status models.ApprovalStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("id = ?", id).
		Update("approval_status", status).Error
}

func (r *MatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Match{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByType returns the number of matches per type in a batch.
func (r *MatchRepository) CountByType(ctx context.Context, batchID uuid.UUID) (map[models.MatchType]int, error) {
	var rows []struct {
		MatchType models.MatchType
		Count     int
	}
	err := r.db.WithContext(ctx).
		Model(&models.Match{}).
		Select("match_type, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("match_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.MatchType]int, len(rows))
	for _, row := range rows {
		counts[row.MatchType] = row.Count
	}
	return counts, nil
}

// MatchedTargets returns which of ids are already referenced by a match.
func (r *MatchRepository) MatchedTargets(ctx context.Context, t models.TargetType, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	matched := make(map[uuid.UUID]bool)
	if len(ids) == 0 {
		return matched, nil
	}
	var found []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("target_type = ? AND target_id IN ?", t, ids).
		Pluck("target_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		matched[id] = true
	}
	return matched, nil
}
