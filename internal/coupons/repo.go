package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
)

// Repository handles coupon persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, merchantID uuid.UUID, code string) (*models.Coupon, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Coupon, error)
	// MarkUsed flips used exactly once; the affected-row count distinguishes
	// a redeem from a replay.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)
	DeleteExpiredUnused(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a coupon repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) FindByCode(ctx context.Context, merchantID uuid.UUID, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND code = ?", merchantID, code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Coupon, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Coupon
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND used = FALSE AND expires_at > ?", id, usedAt).
		Updates(map[string]any{
			"used":    true,
			"used_at": usedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) DeleteExpiredUnused(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("used = FALSE AND expires_at < ?", cutoff).
		Delete(&models.Coupon{})
	return result.RowsAffected, result.Error
}
