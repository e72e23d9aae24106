package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SongRequestRepository persists donation-backed song requests. MarkPaid and
// the demotion path are conditional updates like the transaction ledger.
type SongRequestRepository interface {
	Create(ctx context.Context, req *model.SongRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SongRequest, error)
	FindByGatewayRef(ctx context.Context, provider, ref string) (*model.SongRequest, error)
	SetGatewayResult(ctx context.Context, id uuid.UUID, ref, meta string) error

	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPlayed(ctx context.Context, id uuid.UUID) (bool, error)

	// Queue returns paid requests for a venue ordered by donation amount,
	// ties broken by submission time.
	Queue(ctx context.Context, venueID string) ([]model.SongRequest, error)

	// ExpiredPaid lists requests whose paid_at is at or before the cutoff and
	// that are still paid; Demote flips one of them to playing.
	ExpiredPaid(ctx context.Context, cutoff time.Time) ([]model.SongRequest, error)
	Demote(ctx context.Context, id uuid.UUID, playedAt time.Time) (bool, error)

	SumPaidInPeriod(ctx context.Context, venueID string, start, end time.Time) (decimal.Decimal, error)
}

type songRequestRepository struct {
	db *gorm.DB
}

func NewSongRequestRepository(db *gorm.DB) SongRequestRepository {
	return &songRequestRepository{db: db}
}

func (r *songRequestRepository) Create(ctx context.Context, req *model.SongRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *songRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SongRequest, error) {
	var req model.SongRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *songRequestRepository) FindByGatewayRef(ctx context.Context, provider, ref string) (*model.SongRequest, error) {
	var req model.SongRequest
	if err := GetDB(ctx, r.db).
		First(&req, "gateway_provider = ? AND gateway_ref = ?", provider, ref).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *songRequestRepository) SetGatewayResult(ctx context.Context, id uuid.UUID, ref, meta string) error {
	return GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gateway_ref":  ref,
			"gateway_meta": meta,
		}).Error
}

func (r *songRequestRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Where("id = ? AND status = ?", id, model.SongStatusPending).
		Updates(map[string]interface{}{
			"status":  model.SongStatusPaid,
			"paid_at": paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *songRequestRepository) MarkRejected(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Where("id = ? AND status IN ?", id, []string{model.SongStatusPending, model.SongStatusPaid}).
		Update("status", model.SongStatusRejected)
	return res.RowsAffected == 1, res.Error
}

func (r *songRequestRepository) MarkPlayed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Where("id = ? AND status = ?", id, model.SongStatusPlaying).
		Update("status", model.SongStatusPlayed)
	return res.RowsAffected == 1, res.Error
}

func (r *songRequestRepository) Queue(ctx context.Context, venueID string) ([]model.SongRequest, error) {
	var reqs []model.SongRequest
	err := GetDB(ctx, r.db).
		Where("venue_id = ? AND status = ?", venueID, model.SongStatusPaid).
		Order("amount DESC, created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *songRequestRepository) ExpiredPaid(ctx context.Context, cutoff time.Time) ([]model.SongRequest, error) {
	var reqs []model.SongRequest
	err := GetDB(ctx, r.db).
		Where("status = ? AND paid_at <= ?", model.SongStatusPaid, cutoff).
		Order("paid_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *songRequestRepository) Demote(ctx context.Context, id uuid.UUID, playedAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Where("id = ? AND status = ?", id, model.SongStatusPaid).
		Updates(map[string]interface{}{
			"status":    model.SongStatusPlaying,
			"played_at": playedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *songRequestRepository) SumPaidInPeriod(ctx context.Context, venueID string, start, end time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := GetDB(ctx, r.db).Model(&model.SongRequest{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("venue_id = ? AND status IN ?", venueID, model.PaidEquivalentSongStatuses).
		Where("paid_at >= ? AND paid_at < ?", start, end).
		Scan(&row).Error
	return row.Total, err
}
