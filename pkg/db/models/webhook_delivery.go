package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// WebhookDelivery deduplicates webhook retries from the upstream platform.
// The unique index on (merchant_id, event, dedup_key) makes a replayed
// delivery a no-op before it ever reaches the engine.
type WebhookDelivery struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID          `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:ux_webhook_deliveries_dedup"`
	Event      enums.LoyaltyEvent `gorm:"column:event;not null;uniqueIndex:ux_webhook_deliveries_dedup"`
	DedupKey   string             `gorm:"column:dedup_key;not null;uniqueIndex:ux_webhook_deliveries_dedup"`
	ReceivedAt time.Time          `gorm:"column:received_at;autoCreateTime"`
}
