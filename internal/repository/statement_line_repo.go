package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bank-reconciliation-backend/internal/models"
)

type StatementLineRepository struct {
	db *gorm.DB
}

func NewStatementLineRepository(db *gorm.DB) *StatementLineRepository {
	return &StatementLineRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *StatementLineRepository) WithTx(tx *gorm.DB) *StatementLineRepository {
	return &StatementLineRepository{db: tx}
}

// InsertIfAbsent inserts line unless the account already has a line with the
// same fingerprint. The unique index decides, so concurrent imports of the same
// line produce exactly one row.
func (r *StatementLineRepository) InsertIfAbsent(ctx context.Context, line *models.StatementLine) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(line)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *StatementLineRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.StatementLine, error) {
	var line models.StatementLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// GetForUpdate loads the line and locks its row until the surrounding
// transaction ends.
func (r *StatementLineRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.StatementLine, error) {
	var line models.StatementLine
	if err := lockForUpdate(r.db.WithContext(ctx)).First(&line, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *StatementLineRepository) GetByFingerprint(ctx context.Context, bankAccountID uuid.UUID, fingerprint string) (*models.StatementLine, error) {
	var line models.StatementLine
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ? AND fingerprint = ?", bankAccountID, fingerprint).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *StatementLineRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.LineStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.StatementLine{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// CountByStatus returns the number of lines per status in a batch.
func (r *StatementLineRepository) CountByStatus(ctx context.Context, batchID uuid.UUID) (map[models.LineStatus]int, error) {
	var rows []struct {
		Status models.LineStatus
		Count  int
	}
	err := r.db.WithContext(ctx).
		Model(&models.StatementLine{}).
		Select("status, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.LineStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListUnmatchedPending returns the batch's PENDING lines that carry no match,
// oldest first.
func (r *StatementLineRepository) ListUnmatchedPending(ctx context.Context, batchID uuid.UUID) ([]models.StatementLine, error) {
	var lines []models.StatementLine
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, models.LineStatusPending).
		Where("NOT EXISTS (SELECT 1 FROM matches m WHERE m.statement_line_id = statement_lines.id)").
		Order("line_date ASC, id ASC").
		Find(&lines).Error
	return lines, err
}

// LineFilter narrows List.
type LineFilter struct {
	Status string
	Search string
	Cursor string
	Limit  int
}

// List pages through a batch's lines ordered by id. The returned cursor is
// empty when there are no more rows.
func (r *StatementLineRepository) List(ctx context.Context, batchID uuid.UUID, f LineFilter) ([]models.StatementLine, string, bool, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	query := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Limit(f.Limit + 1)

	if f.Status != "" && f.Status != "all" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Cursor != "" {
		query = query.Where("id > ?", f.Cursor)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where("(LOWER(description) LIKE LOWER(?) OR reference LIKE ?)", like, like)
	}

	var lines []models.StatementLine
	if err := query.Find(&lines).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var next string
	if len(lines) > f.Limit {
		hasMore = true
		next = lines[f.Limit-1].ID.String()
		lines = lines[:f.Limit]
	}
	return lines, next, hasMore, nil
}
