package enums

import "fmt"

// LoyaltyEvent is the closed set of event kinds the engine understands. The
// raw values match the upstream platform's wire names so webhook payloads can
// be parsed without a mapping table.
type LoyaltyEvent string

const (
	EventPurchase                LoyaltyEvent = "purchase"
	EventPurchaseAmountThreshold LoyaltyEvent = "purchaseAmountThresholdPoints"
	EventBirthday                LoyaltyEvent = "birthday"
	EventWelcome                 LoyaltyEvent = "welcome"
	EventFeedbackShipping        LoyaltyEvent = "feedbackShippingPoints"
	EventRatingApp               LoyaltyEvent = "ratingAppPoints"
	EventRatingProduct           LoyaltyEvent = "ratingProductPoints"
	EventProfileCompletion       LoyaltyEvent = "profileCompletion"
	EventRepeatPurchase          LoyaltyEvent = "repeatPurchase"
	EventShareReferral           LoyaltyEvent = "shareReferral"
	EventInstallApp              LoyaltyEvent = "installApp"
	EventManualReward            LoyaltyEvent = "manualReward"
	EventPointsDeduction         LoyaltyEvent = "pointsDeduction"
)

var validLoyaltyEvents = []LoyaltyEvent{
	EventPurchase,
	EventPurchaseAmountThreshold,
	EventBirthday,
	EventWelcome,
	EventFeedbackShipping,
	EventRatingApp,
	EventRatingProduct,
	EventProfileCompletion,
	EventRepeatPurchase,
	EventShareReferral,
	EventInstallApp,
	EventManualReward,
	EventPointsDeduction,
}

// IsValid reports whether the value matches the canonical loyalty event set.
func (e LoyaltyEvent) IsValid() bool {
	for _, candidate := range validLoyaltyEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsFixedPoint reports whether the event awards a merchant-configured flat
// point value (as opposed to a computed or negative delta).
func (e LoyaltyEvent) IsFixedPoint() bool {
	switch e {
	case EventBirthday, EventWelcome, EventFeedbackShipping, EventRatingApp,
		EventRatingProduct, EventProfileCompletion, EventRepeatPurchase,
		EventShareReferral, EventInstallApp:
		return true
	}
	return false
}

// ParseLoyaltyEvent converts raw input into a LoyaltyEvent.
func ParseLoyaltyEvent(value string) (LoyaltyEvent, error) {
	for _, candidate := range validLoyaltyEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty event %q", value)
}
