package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

// Merchant is the canonical tenant model: one store on the upstream commerce
// platform, created on app authorization.
type Merchant struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlatformStoreID string                `gorm:"column:platform_store_id;not null;uniqueIndex"`
	Name            string                `gorm:"column:name;not null"`
	Email           *string               `gorm:"column:email"`
	Locale          string                `gorm:"column:locale;not null;default:'ar'"`
	LoyaltySettings types.LoyaltySettings `gorm:"column:loyalty_settings;type:jsonb;not null"`
	// CustomersPoints is an informational aggregate of all points awarded
	// across the merchant's customers. It is recomputed from the activity
	// ledger by the reconciliation job and must not be read as authoritative.
	CustomersPoints int64      `gorm:"column:customers_points;not null;default:0"`
	UninstalledAt   *time.Time `gorm:"column:uninstalled_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
