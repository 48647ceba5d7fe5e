package enums

import "fmt"

// DeductionReason explains why points were removed from a customer balance.
type DeductionReason string

const (
	DeductionReasonOrderCancelled DeductionReason = "order_cancelled"
	DeductionReasonOrderDeleted   DeductionReason = "order_deleted"
	DeductionReasonOrderRefunded  DeductionReason = "order_refunded"
)

var validDeductionReasons = []DeductionReason{
	DeductionReasonOrderCancelled,
	DeductionReasonOrderDeleted,
	DeductionReasonOrderRefunded,
}

// IsValid reports whether the value matches the canonical deduction reason set.
func (r DeductionReason) IsValid() bool {
	for _, candidate := range validDeductionReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseDeductionReason converts raw input into a DeductionReason.
func ParseDeductionReason(value string) (DeductionReason, error) {
	for _, candidate := range validDeductionReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deduction reason %q", value)
}
