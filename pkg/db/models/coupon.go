package models

import (
	"time"

	"github.com/google/uuid"
)

// Coupon is a single-use, expiring instantiation of a reward rule for one
// customer. Reward, customer, and merchant links are immutable after
// creation; used transitions false→true exactly once.
type Coupon struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID  `gorm:"column:merchant_id;type:uuid;not null;index"`
	CustomerID uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	RewardID   uuid.UUID  `gorm:"column:reward_id;type:uuid;not null"`
	Code       string     `gorm:"column:code;not null;uniqueIndex"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	Used       bool       `gorm:"column:used;not null;default:false"`
	UsedAt     *time.Time `gorm:"column:used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}
