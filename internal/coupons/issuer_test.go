package coupons

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
)

type fakeCouponRepo struct {
	Repository
	coupons []*models.Coupon
}

func (f *fakeCouponRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeCouponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	coupon.ID = uuid.New()
	f.coupons = append(f.coupons, coupon)
	return nil
}

func (f *fakeCouponRepo) FindByCode(ctx context.Context, merchantID uuid.UUID, code string) (*models.Coupon, error) {
	for _, c := range f.coupons {
		if c.MerchantID == merchantID && c.Code == code {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCouponRepo) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	for _, c := range f.coupons {
		if c.ID == id && !c.Used && c.ExpiresAt.After(usedAt) {
			c.Used = true
			c.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

type fakeRewardRepo struct {
	rewards.Repository
	rules     []models.Reward
	usedCount map[uuid.UUID]int
}

func (f *fakeRewardRepo) WithTx(tx *gorm.DB) rewards.Repository { return f }

func (f *fakeRewardRepo) ListEnabledByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	var out []models.Reward
	for _, r := range f.rules {
		if r.MerchantID == merchantID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRewardRepo) IncrementTimesUsed(ctx context.Context, id uuid.UUID) error {
	if f.usedCount == nil {
		f.usedCount = map[uuid.UUID]int{}
	}
	f.usedCount[id]++
	return nil
}

type fakeNotifRepo struct {
	notifications.Repository
	created []*models.Notification
}

func (f *fakeNotifRepo) WithTx(tx *gorm.DB) notifications.Repository { return f }

func (f *fakeNotifRepo) Create(ctx context.Context, n *models.Notification) error {
	f.created = append(f.created, n)
	return nil
}

type fakeEmitter struct {
	emitted []outbox.DomainEvent
	deduped map[string]bool
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.emitted = append(f.emitted, event)
	return nil
}

func (f *fakeEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error) {
	if f.deduped == nil {
		f.deduped = map[string]bool{}
	}
	key := fmt.Sprintf("%s/%s/%s", event.EventType, event.AggregateType, event.AggregateID)
	if f.deduped[key] {
		return false, nil
	}
	f.deduped[key] = true
	f.emitted = append(f.emitted, event)
	return true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type issuerFixture struct {
	issuer  Issuer
	coupons *fakeCouponRepo
	rewards *fakeRewardRepo
	notifs  *fakeNotifRepo
	events  *fakeEmitter
}

func newIssuerFixture(t *testing.T, rules ...models.Reward) *issuerFixture {
	t.Helper()
	f := &issuerFixture{
		coupons: &fakeCouponRepo{},
		rewards: &fakeRewardRepo{rules: rules},
		notifs:  &fakeNotifRepo{},
		events:  &fakeEmitter{},
	}
	logg := logger.New(logger.Options{ServiceName: "coupons-test", Level: zerolog.ErrorLevel, Output: io.Discard})
	iss, err := NewIssuer(fakeTxRunner{}, f.coupons, f.rewards, f.notifs, f.events, config.LoyaltyConfig{
		CouponValidityDays: 30,
		CouponCodeLength:   10,
	}, logg)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	f.issuer = iss
	return f
}

func activeRule(merchantID uuid.UUID, pointsRequired int64) models.Reward {
	return models.Reward{
		ID:             uuid.New(),
		MerchantID:     merchantID,
		Name:           "100-point voucher",
		PointsRequired: pointsRequired,
		RewardType:     enums.RewardTypeFixedDiscount,
		Enabled:        true,
	}
}

func testMerchant() *models.Merchant {
	return &models.Merchant{ID: uuid.New(), Name: "Test Store", Locale: "en"}
}

func testCustomer(merchantID uuid.UUID) *models.Customer {
	email := "shopper@example.com"
	return &models.Customer{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Name:       "Shopper",
		Email:      &email,
	}
}

func TestIssueOnAwardSingleCrossing(t *testing.T) {
	merchant := testMerchant()
	rule := activeRule(merchant.ID, 100)
	f := newIssuerFixture(t, rule)
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 95,
		BalanceAfter:  105,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 1 {
		t.Fatalf("expected 1 coupon, got %d", len(result.Coupons))
	}

	coupon := result.Coupons[0]
	if coupon.RewardID != rule.ID {
		t.Errorf("coupon linked to reward %s, want %s", coupon.RewardID, rule.ID)
	}
	if coupon.Used {
		t.Error("freshly issued coupon marked used")
	}
	if !strings.HasPrefix(coupon.Code, "NQ-") {
		t.Errorf("coupon code %q missing prefix", coupon.Code)
	}
	if f.rewards.usedCount[rule.ID] != 1 {
		t.Errorf("reward usage count = %d, want 1", f.rewards.usedCount[rule.ID])
	}
	if len(f.events.emitted) != 1 || f.events.emitted[0].EventType != enums.EventCouponIssued {
		t.Fatalf("expected one coupon_issued event, got %+v", f.events.emitted)
	}
}

func TestIssueOnAwardMultipleCrossings(t *testing.T) {
	merchant := testMerchant()
	rule := activeRule(merchant.ID, 100)
	f := newIssuerFixture(t, rule)
	customer := testCustomer(merchant.ID)

	// 50 → 310 crosses 100, 200, and 300.
	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 50,
		BalanceAfter:  310,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 3 {
		t.Fatalf("expected 3 coupons, got %d", len(result.Coupons))
	}
	codes := map[string]bool{}
	for _, c := range result.Coupons {
		codes[c.Code] = true
	}
	if len(codes) != 3 {
		t.Errorf("coupon codes are not unique: %v", codes)
	}
	if f.rewards.usedCount[rule.ID] != 3 {
		t.Errorf("reward usage count = %d, want 3", f.rewards.usedCount[rule.ID])
	}
}

func TestIssueOnAwardHonorsUsageCap(t *testing.T) {
	merchant := testMerchant()
	rule := activeRule(merchant.ID, 100)
	maxUses := 1
	rule.MaxUses = &maxUses
	f := newIssuerFixture(t, rule)
	customer := testCustomer(merchant.ID)

	// 50 → 250 crosses 100 and 200, but the rule only has one use left.
	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 50,
		BalanceAfter:  250,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 1 {
		t.Fatalf("expected 1 coupon, got %d", len(result.Coupons))
	}
	if f.rewards.usedCount[rule.ID] != 1 {
		t.Errorf("reward usage count = %d, want 1", f.rewards.usedCount[rule.ID])
	}
}

func TestIssueOnAwardFallsThroughToNextRuleOnCap(t *testing.T) {
	merchant := testMerchant()
	capped := activeRule(merchant.ID, 100)
	maxUses := 1
	capped.MaxUses = &maxUses
	backup := activeRule(merchant.ID, 100)
	f := newIssuerFixture(t, capped, backup)
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 50,
		BalanceAfter:  250,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 2 {
		t.Fatalf("expected 2 coupons, got %d", len(result.Coupons))
	}
	if result.Coupons[0].RewardID != capped.ID {
		t.Errorf("first coupon from reward %s, want %s", result.Coupons[0].RewardID, capped.ID)
	}
	if result.Coupons[1].RewardID != backup.ID {
		t.Errorf("second coupon from reward %s, want %s", result.Coupons[1].RewardID, backup.ID)
	}
	if f.rewards.usedCount[capped.ID] != 1 || f.rewards.usedCount[backup.ID] != 1 {
		t.Errorf("usage counts = %v, want one coupon per rule", f.rewards.usedCount)
	}
}

func TestIssueOnAwardNoCrossing(t *testing.T) {
	merchant := testMerchant()
	f := newIssuerFixture(t, activeRule(merchant.ID, 100))
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 10,
		BalanceAfter:  95,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 0 {
		t.Fatalf("expected no coupons, got %d", len(result.Coupons))
	}
	if len(f.events.emitted) != 0 {
		t.Errorf("expected no events, got %+v", f.events.emitted)
	}
}

func TestIssueOnAwardNoActiveRuleFlagsGap(t *testing.T) {
	merchant := testMerchant()
	f := newIssuerFixture(t) // no rules at all
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 95,
		BalanceAfter:  105,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if !result.RuleMissing {
		t.Error("expected RuleMissing to be set")
	}
	if len(result.Coupons) != 0 {
		t.Errorf("expected no coupons, got %d", len(result.Coupons))
	}
	if len(f.notifs.created) != 1 {
		t.Fatalf("expected one admin notification, got %d", len(f.notifs.created))
	}
	if f.notifs.created[0].Type != enums.NotificationTypeRewardConfigGap {
		t.Errorf("notification type = %s, want %s", f.notifs.created[0].Type, enums.NotificationTypeRewardConfigGap)
	}
	if len(f.events.emitted) != 1 || f.events.emitted[0].EventType != enums.EventRewardConfigMissing {
		t.Fatalf("expected reward_config_missing event, got %+v", f.events.emitted)
	}

	// A second award while still misconfigured must not duplicate the alert.
	if _, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 105,
		BalanceAfter:  120,
	}); err != nil {
		t.Fatalf("second IssueOnAward: %v", err)
	}
	if len(f.notifs.created) != 1 {
		t.Errorf("repeat award duplicated the gap notification: %d rows", len(f.notifs.created))
	}
	if len(f.events.emitted) != 1 {
		t.Errorf("repeat award duplicated the gap event: %d events", len(f.events.emitted))
	}
}

func TestIssueOnAwardSkipsInactiveRules(t *testing.T) {
	merchant := testMerchant()
	past := time.Now().Add(-time.Hour)
	expired := activeRule(merchant.ID, 100)
	expired.ValidUntil = &past
	f := newIssuerFixture(t, expired)
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 95,
		BalanceAfter:  105,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if !result.RuleMissing {
		t.Error("expired rule should count as a configuration gap")
	}
}

func TestIssueOnAwardIgnoresDeductions(t *testing.T) {
	merchant := testMerchant()
	f := newIssuerFixture(t, activeRule(merchant.ID, 100))
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 150,
		BalanceAfter:  90,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	if len(result.Coupons) != 0 || result.RuleMissing {
		t.Fatalf("deduction produced issuance side effects: %+v", result)
	}
}

func TestRedeemLifecycle(t *testing.T) {
	merchant := testMerchant()
	rule := activeRule(merchant.ID, 100)
	f := newIssuerFixture(t, rule)
	customer := testCustomer(merchant.ID)

	result, err := f.issuer.IssueOnAward(context.Background(), &gorm.DB{}, IssueInput{
		Customer:      customer,
		Merchant:      merchant,
		BalanceBefore: 95,
		BalanceAfter:  105,
	})
	if err != nil {
		t.Fatalf("IssueOnAward: %v", err)
	}
	code := result.Coupons[0].Code

	redeemed, err := f.issuer.Redeem(context.Background(), merchant.ID, code)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !redeemed.Used || redeemed.UsedAt == nil {
		t.Error("redeemed coupon not marked used")
	}

	var sawRedeemed bool
	for _, e := range f.events.emitted {
		if e.EventType == enums.EventCouponRedeemed {
			sawRedeemed = true
		}
	}
	if !sawRedeemed {
		t.Error("expected coupon_redeemed event")
	}

	// Replay must fail without touching state again.
	if _, err := f.issuer.Redeem(context.Background(), merchant.ID, code); err == nil {
		t.Fatal("expected replayed redemption to fail")
	} else if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeStateConflict {
		t.Errorf("replay error = %v, want state conflict", err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	merchant := testMerchant()
	f := newIssuerFixture(t)

	_, err := f.issuer.Redeem(context.Background(), merchant.ID, "NQ-DOESNOTEXIST")
	if err == nil {
		t.Fatal("expected error for unknown code")
	}
	if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestRedeemExpiredCoupon(t *testing.T) {
	merchant := testMerchant()
	f := newIssuerFixture(t)

	expired := &models.Coupon{
		MerchantID: merchant.ID,
		CustomerID: uuid.New(),
		RewardID:   uuid.New(),
		Code:       "NQ-EXPIRED99",
		ExpiresAt:  time.Now().Add(-24 * time.Hour),
	}
	if err := f.coupons.Create(context.Background(), expired); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}

	_, err := f.issuer.Redeem(context.Background(), merchant.ID, expired.Code)
	if err == nil {
		t.Fatal("expected error for expired coupon")
	}
	if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeStateConflict {
		t.Errorf("error = %v, want state conflict", err)
	}
}

func TestGenerateCodeShape(t *testing.T) {
	code, err := GenerateCode(10)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !strings.HasPrefix(code, "NQ-") {
		t.Errorf("code %q missing prefix", code)
	}
	if got := len(code) - len("NQ-"); got != 10 {
		t.Errorf("code body length = %d, want 10", got)
	}
	for _, r := range code[len("NQ-"):] {
		if strings.ContainsRune("01ILO", r) {
			t.Errorf("code %q contains ambiguous glyph %q", code, r)
		}
	}
}
