package service

import (
	"context"

	"backend/internal/repository"
	"backend/pkg/apperror"
)

// --- DTOs ---

type WarpPackageResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DisplaySeconds int    `json:"display_seconds"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
}

// --- Interface ---

type CatalogService interface {
	ListPackages(ctx context.Context) ([]WarpPackageResponse, error)
}

type catalogService struct {
	packageRepo repository.PackageRepository
}

func NewCatalogService(packageRepo repository.PackageRepository) CatalogService {
	return &catalogService{packageRepo: packageRepo}
}

// --- Implementation ---

func (s *catalogService) ListPackages(ctx context.Context) ([]WarpPackageResponse, error) {
	packages, err := s.packageRepo.ListActive(ctx)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "list warp packages")
	}

	res := make([]WarpPackageResponse, 0, len(packages))
	for _, p := range packages {
		res = append(res, WarpPackageResponse{
			ID:             p.ID.String(),
			Name:           p.Name,
			DisplaySeconds: p.DisplaySeconds,
			Price:          p.Price.StringFixed(2),
			Currency:       p.Currency,
		})
	}
	return res, nil
}
