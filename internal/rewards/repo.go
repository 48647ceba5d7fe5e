package rewards

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
)

// Repository handles reward rule persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reward *models.Reward) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reward, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error)
	// ListEnabledByMerchant returns enabled rules ordered by points_required
	// ascending; the issuer picks the first one that is active right now.
	ListEnabledByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error)
	IncrementTimesUsed(ctx context.Context, id uuid.UUID) error
	Update(ctx context.Context, reward *models.Reward) error
	Delete(ctx context.Context, merchantID, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reward repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reward *models.Reward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reward, nil
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	var rows []models.Reward
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("points_required ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListEnabledByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	var rows []models.Reward
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND enabled = TRUE", merchantID).
		Order("points_required ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) IncrementTimesUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ?", id).
		Update("times_used", gorm.Expr("times_used + 1")).Error
}

func (r *repository) Update(ctx context.Context, reward *models.Reward) error {
	if reward == nil {
		return errors.New("reward is required")
	}
	return r.db.WithContext(ctx).Save(reward).Error
}

func (r *repository) Delete(ctx context.Context, merchantID, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("merchant_id = ? AND id = ?", merchantID, id).
		Delete(&models.Reward{}).Error
}
