package engine

import (
	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

// EventMetadata carries the per-event inputs the calculator and dispatcher
// consume. Fields are optional; each event type reads only what it needs.
type EventMetadata struct {
	Amount         decimal.Decimal `json:"amount,omitempty"`
	OrderID        string          `json:"orderId,omitempty"`
	BirthdayDate   string          `json:"birthdayDate,omitempty"`
	Source         string          `json:"source,omitempty"`
	FeedbackID     string          `json:"feedbackId,omitempty"`
	Rating         int             `json:"rating,omitempty"`
	ProductID      string          `json:"productId,omitempty"`
	ShareCount     int             `json:"shareCount,omitempty"`
	ShareDate      string          `json:"shareDate,omitempty"`
	RewardID       string          `json:"rewardId,omitempty"`
	RewardType     string          `json:"rewardType,omitempty"`
	PointsDeducted int64           `json:"pointsDeducted,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// ComputePoints derives the award for one event from the merchant's settings.
// Unknown events and disabled rules produce zero; callers treat zero as a
// no-op rather than an error. Misconfigured values (non-positive ratios or
// thresholds) also produce zero instead of failing the invocation.
func ComputePoints(event enums.LoyaltyEvent, settings types.LoyaltySettings, meta EventMetadata) int64 {
	switch event {
	case enums.EventPurchase:
		return purchasePoints(settings.Purchase, meta.Amount)

	case enums.EventPurchaseAmountThreshold:
		return thresholdBonus(settings.PurchaseAmountThreshold, meta.Amount)

	default:
		rule, ok := settings.RuleFor(event)
		if !ok || !rule.Enabled || rule.Points <= 0 {
			return 0
		}
		return int64(rule.Points)
	}
}

// purchasePoints is floor(amount / pointsPerCurrencyUnit). A ratio of zero or
// less disables the rule outright so division never sees a bad denominator.
func purchasePoints(rule types.PurchaseRule, amount decimal.Decimal) int64 {
	if !rule.Enabled || !rule.PointsPerCurrencyUnit.IsPositive() {
		return 0
	}
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(rule.PointsPerCurrencyUnit).Floor().IntPart()
}

func thresholdBonus(rule types.ThresholdRule, amount decimal.Decimal) int64 {
	if !rule.Enabled || !rule.ThresholdAmount.IsPositive() || rule.Points <= 0 {
		return 0
	}
	if amount.LessThan(rule.ThresholdAmount) {
		return 0
	}
	return int64(rule.Points)
}
