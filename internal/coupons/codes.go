package coupons

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// couponCharset omits ambiguous glyphs (0/O, 1/I/L) so codes survive being
// read aloud or retyped from a receipt.
const couponCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codePrefix = "NQ"

// GenerateCode produces a random coupon code of the given length, prefixed
// for easy recognition in merchant dashboards.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	var sb strings.Builder
	sb.WriteString(codePrefix)
	sb.WriteString("-")
	for i := 0; i < length; i++ {
		idx, err := randInt(len(couponCharset))
		if err != nil {
			return "", err
		}
		sb.WriteByte(couponCharset[idx])
	}
	return sb.String(), nil
}

func randInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	var buff = make([]byte, 1)
	if _, err := rand.Read(buff); err != nil {
		return 0, err
	}
	return int(buff[0]) % max, nil
}
