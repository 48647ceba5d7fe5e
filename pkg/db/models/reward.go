package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// Reward is a merchant-defined discount template consumed when issuing
// coupons. Read-only to the engine; managed by merchant configuration.
type Reward struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID     uuid.UUID        `gorm:"column:merchant_id;type:uuid;not null;index"`
	Name           string           `gorm:"column:name;not null"`
	PointsRequired int64            `gorm:"column:points_required;not null"`
	RewardType     enums.RewardType `gorm:"column:reward_type;type:reward_type_enum;not null"`
	RewardValue    decimal.Decimal  `gorm:"column:reward_value;type:numeric(12,2);not null"`
	MaxUses        *int             `gorm:"column:max_uses"`
	TimesUsed      int              `gorm:"column:times_used;not null;default:0"`
	ValidFrom      *time.Time       `gorm:"column:valid_from"`
	ValidUntil     *time.Time       `gorm:"column:valid_until"`
	Enabled        bool             `gorm:"column:enabled;not null;default:true"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the rule can be consumed at the given instant.
func (r Reward) ActiveAt(now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	if r.MaxUses != nil && r.TimesUsed >= *r.MaxUses {
		return false
	}
	return true
}
