package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// Customer is a merchant's end-shopper enrolled in the loyalty program.
// Points and tier are mutated exclusively through the engine's ledger path.
type Customer struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID         uuid.UUID  `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:ux_customers_merchant_external"`
	PlatformCustomerID string     `gorm:"column:platform_customer_id;not null;uniqueIndex:ux_customers_merchant_external"`
	Name               string     `gorm:"column:name"`
	Email              *string    `gorm:"column:email"`
	Points             int64      `gorm:"column:points;not null;default:0"`
	Tier               enums.Tier `gorm:"column:tier;type:loyalty_tier_enum;not null;default:'bronze'"`
	ShareCount         int        `gorm:"column:share_count;not null;default:0"`
	BirthdayDate       *time.Time `gorm:"column:birthday_date"`
	DeletedAt          *time.Time `gorm:"column:deleted_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
