package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/pagination"
)

// Repository manages persistence for loyalty activity ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LoyaltyActivity) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.LoyaltyActivity, error)
	// SumByCustomer reconstructs a balance from the append-only ledger.
	SumByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
	// SumByMerchant returns the ledger-derived total for the merchant
	// aggregate reconciliation job.
	SumByMerchant(ctx context.Context, merchantID uuid.UUID) (int64, error)
	CountSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LoyaltyActivity) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.LoyaltyActivity, error) {
	query := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.LoyaltyActivity
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyActivity{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) SumByMerchant(ctx context.Context, merchantID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyActivity{}).
		Where("merchant_id = ?", merchantID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) CountSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyActivity{}).
		Where("merchant_id = ? AND created_at >= ?", merchantID, since).
		Count(&count).Error
	return count, err
}
