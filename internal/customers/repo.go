package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
)

// Repository manages persistence for loyalty customers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindByExternalID(ctx context.Context, merchantID uuid.UUID, platformCustomerID string) (*models.Customer, error)
	// FindByExternalIDForUpdate locks the customer row until the enclosing
	// transaction finishes, serializing concurrent ledger writes per customer.
	FindByExternalIDForUpdate(ctx context.Context, merchantID uuid.UUID, platformCustomerID string) (*models.Customer, error)
	Create(ctx context.Context, customer *models.Customer) error
	UpdateBalance(ctx context.Context, id uuid.UUID, points int64, tier string) error
	IncrementShareCount(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]models.Customer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindByExternalID(ctx context.Context, merchantID uuid.UUID, platformCustomerID string) (*models.Customer, error) {
	return r.findByExternal(ctx, merchantID, platformCustomerID, false)
}

func (r *repository) FindByExternalIDForUpdate(ctx context.Context, merchantID uuid.UUID, platformCustomerID string) (*models.Customer, error) {
	return r.findByExternal(ctx, merchantID, platformCustomerID, true)
}

func (r *repository) findByExternal(ctx context.Context, merchantID uuid.UUID, platformCustomerID string, lock bool) (*models.Customer, error) {
	query := r.db.WithContext(ctx).
		Where("merchant_id = ? AND platform_customer_id = ? AND deleted_at IS NULL", merchantID, platformCustomerID)
	if lock {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var customer models.Customer
	if err := query.First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, points int64, tier string) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"points": points,
			"tier":   tier,
		}).Error
}

func (r *repository) IncrementShareCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Update("share_count", gorm.Expr("share_count + 1")).Error
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", gorm.Expr("now()")).Error
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Customer
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND deleted_at IS NULL", merchantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
