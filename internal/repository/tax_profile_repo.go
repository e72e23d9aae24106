package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaxProfileRepository interface {
	FindByVenue(ctx context.Context, venueID string) (*model.VenueTaxProfile, error)
	Upsert(ctx context.Context, profile *model.VenueTaxProfile) error
}

type taxProfileRepository struct {
	db *gorm.DB
}

func NewTaxProfileRepository(db *gorm.DB) TaxProfileRepository {
	return &taxProfileRepository{db: db}
}

func (r *taxProfileRepository) FindByVenue(ctx context.Context, venueID string) (*model.VenueTaxProfile, error) {
	var profile model.VenueTaxProfile
	if err := GetDB(ctx, r.db).First(&profile, "venue_id = ?", venueID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *taxProfileRepository) Upsert(ctx context.Context, profile *model.VenueTaxProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "venue_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tax_type", "tax_rate", "brackets",
			"personal_allowance", "business_expense_pct", "other_deductions",
			"gateway_fee_rate", "owner_share_rate", "updated_at",
		}),
	}).Create(profile).Error
}
