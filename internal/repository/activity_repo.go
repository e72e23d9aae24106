package repository

import (
	"context"

	"backend/internal/model"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityRepository appends to and reads the transaction audit trail.
// Entries are append-only; there is deliberately no update or delete.
type ActivityRepository interface {
	Append(ctx context.Context, entry *model.TransactionActivity) error
	List(ctx context.Context, transactionID uuid.UUID, p pagination.Params) ([]model.TransactionActivity, int64, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, entry *model.TransactionActivity) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *activityRepository) List(ctx context.Context, transactionID uuid.UUID, p pagination.Params) ([]model.TransactionActivity, int64, error) {
	db := GetDB(ctx, r.db).Model(&model.TransactionActivity{}).
		Where("transaction_id = ?", transactionID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.TransactionActivity
	if err := db.Order("created_at ASC").Scopes(p.Scope).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
