package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// PointsRule is a flat-award rule for a single loyalty event.
type PointsRule struct {
	Enabled bool `json:"enabled"`
	Points  int  `json:"points"`
}

// PurchaseRule converts order totals into points. A ratio of zero or less
// means the rule is effectively disabled.
type PurchaseRule struct {
	Enabled               bool            `json:"enabled"`
	PointsPerCurrencyUnit decimal.Decimal `json:"pointsPerCurrencyUnit"`
}

// ThresholdRule awards a flat bonus when the order amount reaches the
// configured threshold. Evaluated independently of the base purchase rule.
type ThresholdRule struct {
	Enabled         bool            `json:"enabled"`
	ThresholdAmount decimal.Decimal `json:"thresholdAmount"`
	Points          int             `json:"points"`
}

// TierThresholds holds the cumulative-point floors for each tier. They must
// be strictly increasing; Validate enforces this at configuration time.
type TierThresholds struct {
	Bronze   int `json:"bronze"`
	Silver   int `json:"silver"`
	Gold     int `json:"gold"`
	Platinum int `json:"platinum"`
}

// LoyaltySettings is the merchant's full loyalty configuration, persisted as
// a JSONB document on the merchant row.
type LoyaltySettings struct {
	Purchase                PurchaseRule  `json:"purchase"`
	PurchaseAmountThreshold ThresholdRule `json:"purchaseAmountThreshold"`
	Birthday                PointsRule    `json:"birthday"`
	Welcome                 PointsRule    `json:"welcome"`
	FeedbackShipping        PointsRule    `json:"feedbackShipping"`
	RatingApp               PointsRule    `json:"ratingApp"`
	RatingProduct           PointsRule    `json:"ratingProduct"`
	ProfileCompletion       PointsRule    `json:"profileCompletion"`
	RepeatPurchase          PointsRule    `json:"repeatPurchase"`
	ShareReferral           PointsRule    `json:"shareReferral"`
	InstallApp              PointsRule    `json:"installApp"`
	Tiers                   TierThresholds `json:"tiers"`
	// Notifications toggles customer emails per event, keyed by the wire
	// event name. Missing keys default to enabled.
	Notifications map[string]bool `json:"notifications,omitempty"`
}

// RuleFor returns the flat-award rule configured for the given event. The
// second return is false for events that are not flat awards.
func (s LoyaltySettings) RuleFor(event enums.LoyaltyEvent) (PointsRule, bool) {
	switch event {
	case enums.EventBirthday:
		return s.Birthday, true
	case enums.EventWelcome:
		return s.Welcome, true
	case enums.EventFeedbackShipping:
		return s.FeedbackShipping, true
	case enums.EventRatingApp:
		return s.RatingApp, true
	case enums.EventRatingProduct:
		return s.RatingProduct, true
	case enums.EventProfileCompletion:
		return s.ProfileCompletion, true
	case enums.EventRepeatPurchase:
		return s.RepeatPurchase, true
	case enums.EventShareReferral:
		return s.ShareReferral, true
	case enums.EventInstallApp:
		return s.InstallApp, true
	}
	return PointsRule{}, false
}

// NotifyEnabled reports whether customer emails for the notification
// category are on. Keys in the settings map are outbox event types, e.g.
// "points_awarded" or "coupon_issued"; absent keys default to enabled.
func (s LoyaltySettings) NotifyEnabled(event string) bool {
	if s.Notifications == nil {
		return true
	}
	enabled, ok := s.Notifications[event]
	if !ok {
		return true
	}
	return enabled
}

// Validate rejects configurations the engine would otherwise have to guess
// around: non-positive purchase ratios and unordered tier thresholds.
func (s LoyaltySettings) Validate() error {
	if s.Purchase.Enabled && !s.Purchase.PointsPerCurrencyUnit.IsPositive() {
		return fmt.Errorf("purchase pointsPerCurrencyUnit must be positive")
	}
	if s.PurchaseAmountThreshold.Enabled && !s.PurchaseAmountThreshold.ThresholdAmount.IsPositive() {
		return fmt.Errorf("purchaseAmountThreshold amount must be positive")
	}
	t := s.Tiers
	if !(t.Bronze < t.Silver && t.Silver < t.Gold && t.Gold < t.Platinum) {
		return fmt.Errorf("tier thresholds must be strictly increasing (bronze < silver < gold < platinum)")
	}
	if t.Bronze < 0 {
		return fmt.Errorf("tier thresholds must be non-negative")
	}
	return nil
}

// Value marshals the settings into JSON for Postgres.
func (s LoyaltySettings) Value() (driver.Value, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the settings struct.
func (s *LoyaltySettings) Scan(value interface{}) error {
	if value == nil {
		*s = LoyaltySettings{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("loyalty settings: unsupported scan type %T", value)
	}

	var result LoyaltySettings
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*s = result
	return nil
}
