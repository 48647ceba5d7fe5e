package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// LoyaltyActivity is an immutable append-only ledger entry recording one
// signed point change. Customer balances are reconstructable by summing a
// customer's entries.
type LoyaltyActivity struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID          `gorm:"column:merchant_id;type:uuid;not null;index"`
	CustomerID uuid.UUID          `gorm:"column:customer_id;type:uuid;not null;index"`
	Event      enums.LoyaltyEvent `gorm:"column:event;not null"`
	Points     int64              `gorm:"column:points;not null"`
	Metadata   json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
