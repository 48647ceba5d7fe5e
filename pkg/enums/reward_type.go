package enums

import "fmt"

// RewardType maps to the reward_type_enum enum in Postgres.
type RewardType string

const (
	RewardTypePercentageDiscount RewardType = "percentage_discount"
	RewardTypeFixedDiscount      RewardType = "fixed_discount"
	RewardTypeFreeShipping       RewardType = "free_shipping"
	RewardTypeFreeProduct        RewardType = "free_product"
)

var validRewardTypes = []RewardType{
	RewardTypePercentageDiscount,
	RewardTypeFixedDiscount,
	RewardTypeFreeShipping,
	RewardTypeFreeProduct,
}

// IsValid reports whether the value matches the canonical reward type enum.
func (t RewardType) IsValid() bool {
	for _, candidate := range validRewardTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRewardType converts raw input into a RewardType.
func ParseRewardType(value string) (RewardType, error) {
	for _, candidate := range validRewardTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward type %q", value)
}
