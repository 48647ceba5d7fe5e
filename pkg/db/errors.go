package db

import "strings"

// IsUniqueViolation reports whether err is a Postgres unique violation.
// Passing a constraint name narrows the check to that specific constraint,
// which is how the webhook dedup and coupon code paths tell an expected
// duplicate from a real failure.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}
