package notifications

import (
	"fmt"
	"time"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/mailer"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/payloads"
)

// Email copy lives here in both supported locales. Anything other than "en"
// falls back to Arabic, the platform default.

func isEnglish(locale string) bool {
	return locale == "en"
}

func pointsAwardedEmail(merchantName string, payload payloads.PointsChangedEvent) mailer.Message {
	msg := mailer.Message{To: payload.CustomerEmail, ToName: payload.CustomerName}
	if isEnglish(payload.Locale) {
		msg.Subject = fmt.Sprintf("You earned %d points at %s", payload.Points, merchantName)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nYou just earned %d loyalty points at %s. Your balance is now %d points.\n\nKeep shopping to unlock rewards!",
			payload.CustomerName, payload.Points, merchantName, payload.Balance,
		)
	} else {
		msg.Subject = fmt.Sprintf("لقد كسبت %d نقطة من %s", payload.Points, merchantName)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nلقد كسبت %d نقطة ولاء من %s. رصيدك الآن %d نقطة.\n\nواصل التسوق لفتح المكافآت!",
			payload.CustomerName, payload.Points, merchantName, payload.Balance,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func birthdayEmail(merchantName string, payload payloads.PointsChangedEvent) mailer.Message {
	msg := mailer.Message{To: payload.CustomerEmail, ToName: payload.CustomerName}
	if isEnglish(payload.Locale) {
		msg.Subject = fmt.Sprintf("Happy birthday from %s! %d points are yours", merchantName, payload.Points)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nHappy birthday! %s added %d loyalty points to your account as a gift. Your balance is now %d points.\n\nTreat yourself!",
			payload.CustomerName, merchantName, payload.Points, payload.Balance,
		)
	} else {
		msg.Subject = fmt.Sprintf("عيد ميلاد سعيد من %s! %d نقطة هدية لك", merchantName, payload.Points)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nعيد ميلاد سعيد! أهداك %s %d نقطة ولاء في حسابك. رصيدك الآن %d نقطة.\n\nدلل نفسك!",
			payload.CustomerName, merchantName, payload.Points, payload.Balance,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func referralShareEmail(merchantName string, payload payloads.PointsChangedEvent) mailer.Message {
	msg := mailer.Message{To: payload.CustomerEmail, ToName: payload.CustomerName}
	if isEnglish(payload.Locale) {
		msg.Subject = fmt.Sprintf("Thanks for sharing %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nThanks for spreading the word about %s! Your referral share earned you %d points. Your balance is now %d points.",
			payload.CustomerName, merchantName, payload.Points, payload.Balance,
		)
	} else {
		msg.Subject = fmt.Sprintf("شكراً لمشاركتك %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nشكراً لنشر كلمة عن %s! أكسبتك مشاركتك %d نقطة. رصيدك الآن %d نقطة.",
			payload.CustomerName, merchantName, payload.Points, payload.Balance,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func pointsDeductedEmail(merchantName string, payload payloads.PointsChangedEvent) mailer.Message {
	deducted := -payload.Points
	msg := mailer.Message{To: payload.CustomerEmail, ToName: payload.CustomerName}
	if isEnglish(payload.Locale) {
		msg.Subject = fmt.Sprintf("Points update from %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\n%d points were deducted from your balance at %s (%s). Your balance is now %d points.",
			payload.CustomerName, deducted, merchantName, deductionReasonText(payload.Reason, "en"), payload.Balance,
		)
	} else {
		msg.Subject = fmt.Sprintf("تحديث نقاطك من %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nتم خصم %d نقطة من رصيدك لدى %s (%s). رصيدك الآن %d نقطة.",
			payload.CustomerName, deducted, merchantName, deductionReasonText(payload.Reason, "ar"), payload.Balance,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func tierChangedEmail(merchantName, customerEmail, customerName, locale string, payload payloads.TierChangedEvent) mailer.Message {
	msg := mailer.Message{To: customerEmail, ToName: customerName}
	if isEnglish(locale) {
		msg.Subject = fmt.Sprintf("You reached %s tier at %s", tierText(payload.To, "en"), merchantName)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nCongratulations! Your loyalty tier at %s moved from %s to %s with a balance of %d points.",
			customerName, merchantName, tierText(payload.From, "en"), tierText(payload.To, "en"), payload.Balance,
		)
	} else {
		msg.Subject = fmt.Sprintf("وصلت إلى فئة %s لدى %s", tierText(payload.To, "ar"), merchantName)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nتهانينا! انتقلت فئة ولائك لدى %s من %s إلى %s برصيد %d نقطة.",
			customerName, merchantName, tierText(payload.From, "ar"), tierText(payload.To, "ar"), payload.Balance,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func couponIssuedEmail(merchantName string, payload payloads.CouponIssuedEvent) mailer.Message {
	expires := payload.ExpiresAt.Format("2006-01-02")
	msg := mailer.Message{To: payload.CustomerEmail, ToName: payload.CustomerName}
	if isEnglish(payload.Locale) {
		msg.Subject = fmt.Sprintf("Your reward coupon from %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nYour points earned you a reward at %s! Use coupon code %s before %s.",
			payload.CustomerName, merchantName, payload.Code, expires,
		)
	} else {
		msg.Subject = fmt.Sprintf("قسيمة مكافأتك من %s", merchantName)
		msg.TextBody = fmt.Sprintf(
			"مرحباً %s،\n\nنقاطك أكسبتك مكافأة من %s! استخدم رمز القسيمة %s قبل %s.",
			payload.CustomerName, merchantName, payload.Code, expires,
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func rewardGapEmail(merchantEmail, merchantName, locale string, balance int64, occurredAt time.Time) mailer.Message {
	msg := mailer.Message{To: merchantEmail, ToName: merchantName}
	if isEnglish(locale) {
		msg.Subject = "Action needed: no active reward rule"
		msg.TextBody = fmt.Sprintf(
			"A customer of %s crossed a points threshold (balance %d at %s) but no reward rule is active, so no coupon was issued.\n\nEnable a reward rule so your customers get their coupons.",
			merchantName, balance, occurredAt.Format(time.RFC3339),
		)
	} else {
		msg.Subject = "مطلوب إجراء: لا توجد مكافأة نشطة"
		msg.TextBody = fmt.Sprintf(
			"تجاوز أحد عملاء %s حد النقاط (الرصيد %d في %s) ولا توجد مكافأة نشطة، لذلك لم يتم إصدار أي قسيمة.\n\nفعّل مكافأة حتى يحصل عملاؤك على قسائمهم.",
			merchantName, balance, occurredAt.Format(time.RFC3339),
		)
	}
	msg.HTMLBody = htmlWrap(msg.TextBody)
	return msg
}

func deductionReasonText(reason enums.DeductionReason, locale string) string {
	switch reason {
	case enums.DeductionReasonOrderCancelled:
		if locale == "en" {
			return "order cancelled"
		}
		return "تم إلغاء الطلب"
	case enums.DeductionReasonOrderRefunded:
		if locale == "en" {
			return "order refunded"
		}
		return "تم استرداد الطلب"
	case enums.DeductionReasonOrderDeleted:
		if locale == "en" {
			return "order deleted"
		}
		return "تم حذف الطلب"
	}
	if locale == "en" {
		return "adjustment"
	}
	return "تعديل"
}

func tierText(tier enums.Tier, locale string) string {
	if locale == "en" {
		return string(tier)
	}
	switch tier {
	case enums.TierBronze:
		return "البرونزية"
	case enums.TierSilver:
		return "الفضية"
	case enums.TierGold:
		return "الذهبية"
	case enums.TierPlatinum:
		return "البلاتينية"
	}
	return string(tier)
}

// htmlWrap produces a minimal HTML rendition of the plain-text body. Real
// branded templates live in the upstream email service configuration.
func htmlWrap(text string) string {
	return "<html><body><p>" + nl2br(text) + "</p></body></html>"
}

func nl2br(text string) string {
	out := ""
	for _, r := range text {
		if r == '\n' {
			out += "<br/>"
			continue
		}
		out += string(r)
	}
	return out
}
