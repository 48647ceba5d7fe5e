package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// PointsChangedEvent is emitted for every ledger write, award or deduction.
// Points carries the signed, clamped delta actually applied.
type PointsChangedEvent struct {
	MerchantID    uuid.UUID             `json:"merchantId"`
	CustomerID    uuid.UUID             `json:"customerId"`
	Event         enums.LoyaltyEvent    `json:"event"`
	Points        int64                 `json:"points"`
	Balance       int64                 `json:"balance"`
	Tier          enums.Tier            `json:"tier"`
	Reason        enums.DeductionReason `json:"reason,omitempty"`
	CustomerEmail string                `json:"customerEmail,omitempty"`
	CustomerName  string                `json:"customerName,omitempty"`
	Locale        string                `json:"locale,omitempty"`
	NotifyEnabled bool                  `json:"notifyEnabled"`
}

// TierChangedEvent is emitted when a ledger write moves a customer between
// tiers.
type TierChangedEvent struct {
	MerchantID uuid.UUID  `json:"merchantId"`
	CustomerID uuid.UUID  `json:"customerId"`
	From       enums.Tier `json:"from"`
	To         enums.Tier `json:"to"`
	Balance    int64      `json:"balance"`
}

// CouponIssuedEvent is emitted once per issued coupon.
type CouponIssuedEvent struct {
	MerchantID    uuid.UUID        `json:"merchantId"`
	CustomerID    uuid.UUID        `json:"customerId"`
	CouponID      uuid.UUID        `json:"couponId"`
	RewardID      uuid.UUID        `json:"rewardId"`
	Code          string           `json:"code"`
	RewardType    enums.RewardType `json:"rewardType"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	CustomerEmail string           `json:"customerEmail,omitempty"`
	CustomerName  string           `json:"customerName,omitempty"`
	Locale        string           `json:"locale,omitempty"`
	NotifyEnabled bool             `json:"notifyEnabled"`
}

// CouponRedeemedEvent is emitted when a coupon is marked used.
type CouponRedeemedEvent struct {
	MerchantID uuid.UUID `json:"merchantId"`
	CustomerID uuid.UUID `json:"customerId"`
	CouponID   uuid.UUID `json:"couponId"`
	Code       string    `json:"code"`
	UsedAt     time.Time `json:"usedAt"`
}

// RewardConfigMissingEvent surfaces the misconfiguration where a point award
// crossed a threshold but no active reward rule exists to issue against.
type RewardConfigMissingEvent struct {
	MerchantID uuid.UUID `json:"merchantId"`
	CustomerID uuid.UUID `json:"customerId"`
	Balance    int64     `json:"balance"`
}
