package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
)

type PackageRepository interface {
	ListActive(ctx context.Context) ([]model.WarpPackage, error)
}

type packageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) ListActive(ctx context.Context) ([]model.WarpPackage, error) {
	var packages []model.WarpPackage
	err := GetDB(ctx, r.db).
		Where("active = ?", true).
		Order("price ASC").
		Find(&packages).Error
	return packages, err
}
