package platform

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
)

// DeliveryRepository records processed webhook deliveries. The unique index
// on (merchant_id, event, dedup_key) is the idempotency mechanism for
// upstream retries.
type DeliveryRepository interface {
	Insert(ctx context.Context, delivery *models.WebhookDelivery) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type deliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository binds a GORM DB to webhook delivery tracking.
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) Insert(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *deliveryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.WebhookDelivery{}, "id = ?", id).Error
}

func (r *deliveryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("received_at < ?", cutoff).
		Delete(&models.WebhookDelivery{})
	return result.RowsAffected, result.Error
}
