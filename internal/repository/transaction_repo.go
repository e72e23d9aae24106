package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionRepository persists the warp transaction ledger. The Mark*,
// Claim and CompleteDisplay methods are single conditional updates: the
// status check and the mutation execute as one atomic statement, so exactly
// one of any number of concurrent callers can win a given transition.
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	FindByGatewayRef(ctx context.Context, provider, ref string) (*model.Transaction, error)
	FindByRef(ctx context.Context, ref string) (*model.Transaction, error)
	CodeExists(ctx context.Context, venueID, code string) (bool, error)
	SetGatewayResult(ctx context.Context, id uuid.UUID, ref, meta string) error

	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)

	FindDisplaying(ctx context.Context, venueID string) (*model.Transaction, error)
	OldestPaid(ctx context.Context, venueID string) (*model.Transaction, error)
	Claim(ctx context.Context, id uuid.UUID, startedAt, endsAt time.Time) (bool, error)
	CompleteDisplay(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	QueueDepth(ctx context.Context, venueID string) (int64, error)

	SumPaidInPeriod(ctx context.Context, venueID string, start, end time.Time) (decimal.Decimal, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var tx model.Transaction
	if err := GetDB(ctx, r.db).First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) FindByGatewayRef(ctx context.Context, provider, ref string) (*model.Transaction, error) {
	var tx model.Transaction
	if err := GetDB(ctx, r.db).
		First(&tx, "gateway_provider = ? AND gateway_ref = ?", provider, ref).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) FindByRef(ctx context.Context, ref string) (*model.Transaction, error) {
	var tx model.Transaction
	if err := GetDB(ctx, r.db).First(&tx, "gateway_ref = ?", ref).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) SetGatewayResult(ctx context.Context, id uuid.UUID, ref, meta string) error {
	return GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gateway_ref":  ref,
			"gateway_meta": meta,
		}).Error
}

func (r *transactionRepository) CodeExists(ctx context.Context, venueID, code string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("venue_id = ? AND code = ?", venueID, code).
		Count(&count).Error
	return count > 0, err
}

// MarkPaid flips pending -> paid. Returns false when the row was not in
// pending, which makes a retried callback racing a poll a harmless no-op.
func (r *transactionRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TxStatusPending).
		Updates(map[string]interface{}{
			"status":  model.TxStatusPaid,
			"paid_at": paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *transactionRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TxStatusPending).
		Update("status", model.TxStatusFailed)
	return res.RowsAffected == 1, res.Error
}

func (r *transactionRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND status IN ?", id, []string{model.TxStatusPending, model.TxStatusPaid}).
		Update("status", model.TxStatusCancelled)
	return res.RowsAffected == 1, res.Error
}

func (r *transactionRepository) FindDisplaying(ctx context.Context, venueID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := GetDB(ctx, r.db).
		Where("venue_id = ? AND status = ?", venueID, model.TxStatusDisplaying).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) OldestPaid(ctx context.Context, venueID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := GetDB(ctx, r.db).
		Where("venue_id = ? AND status = ?", venueID, model.TxStatusPaid).
		Order("created_at ASC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Claim flips paid -> displaying in one conditional update. With several
// orchestrator callers racing for the same row, only one caller's condition
// matches; the losers see RowsAffected == 0 and re-read.
func (r *transactionRepository) Claim(ctx context.Context, id uuid.UUID, startedAt, endsAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TxStatusPaid).
		Updates(map[string]interface{}{
			"status":             model.TxStatusDisplaying,
			"display_started_at": startedAt,
			"display_ends_at":    endsAt,
		})
	return res.RowsAffected == 1, res.Error
}

// CompleteDisplay flips displaying -> displayed only when id is the currently
// claimed row.
func (r *transactionRepository) CompleteDisplay(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TxStatusDisplaying).
		Updates(map[string]interface{}{
			"status":               model.TxStatusDisplayed,
			"display_completed_at": completedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *transactionRepository) QueueDepth(ctx context.Context, venueID string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("venue_id = ? AND status = ?", venueID, model.TxStatusPaid).
		Count(&count).Error
	return count, err
}

func (r *transactionRepository) SumPaidInPeriod(ctx context.Context, venueID string, start, end time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("venue_id = ? AND status IN ?", venueID, model.PaidEquivalentStatuses).
		Where("paid_at >= ? AND paid_at < ?", start, end).
		Scan(&row).Error
	return row.Total, err
}
