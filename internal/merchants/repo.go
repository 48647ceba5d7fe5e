package merchants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

// Repository handles merchant persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, merchant *models.Merchant) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	FindByPlatformStoreID(ctx context.Context, platformStoreID string) (*models.Merchant, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings types.LoyaltySettings) error
	AddCustomersPoints(ctx context.Context, id uuid.UUID, delta int64) error
	SetCustomersPoints(ctx context.Context, id uuid.UUID, total int64) error
	MarkUninstalled(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context, limit, offset int) ([]models.Merchant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to merchant operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, merchant *models.Merchant) error {
	return r.db.WithContext(ctx).Create(merchant).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("id = ? AND uninstalled_at IS NULL", id).
		First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *repository) FindByPlatformStoreID(ctx context.Context, platformStoreID string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("platform_store_id = ? AND uninstalled_at IS NULL", platformStoreID).
		First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *repository) UpdateSettings(ctx context.Context, id uuid.UUID, settings types.LoyaltySettings) error {
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Update("loyalty_settings", settings).Error
}

// AddCustomersPoints bumps the informational merchant aggregate. It runs in
// the same transaction as the customer balance write when called through
// WithTx.
func (r *repository) AddCustomersPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Update("customers_points", gorm.Expr("customers_points + ?", delta)).Error
}

// SetCustomersPoints overwrites the aggregate with a reconciled total.
func (r *repository) SetCustomersPoints(ctx context.Context, id uuid.UUID, total int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Update("customers_points", total).Error
}

func (r *repository) MarkUninstalled(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ? AND uninstalled_at IS NULL", id).
		Update("uninstalled_at", gorm.Expr("now()")).Error
}

func (r *repository) ListActive(ctx context.Context, limit, offset int) ([]models.Merchant, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Merchant
	err := r.db.WithContext(ctx).
		Where("uninstalled_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}
