package coupons

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	dbpkg "github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/payloads"
)

// codeGenerateAttempts bounds retries on coupon code collisions. With a
// 31-character alphabet and default length 10 collisions are effectively
// theoretical; the bound exists so a broken generator cannot loop forever.
const codeGenerateAttempts = 5

// IssueInput describes a committed-in-flight balance change. BalanceBefore
// and BalanceAfter are the customer's totals around the ledger write the
// caller holds open in tx.
type IssueInput struct {
	Customer      *models.Customer
	Merchant      *models.Merchant
	BalanceBefore int64
	BalanceAfter  int64
	Now           time.Time
}

// IssueResult reports what the award produced. RuleMissing is set when the
// balance crossed at least one threshold but the merchant has no active
// reward rule to issue against.
type IssueResult struct {
	Coupons     []models.Coupon
	RuleMissing bool
}

// Issuer converts point-threshold crossings into coupons and handles the
// redemption of issued codes.
type Issuer interface {
	// IssueOnAward inspects the balance movement and issues one coupon per
	// reward threshold crossed, inside the caller's transaction.
	IssueOnAward(ctx context.Context, tx *gorm.DB, input IssueInput) (*IssueResult, error)
	// IssueForReward issues a single coupon against an explicit rule,
	// bypassing threshold arithmetic. Used by the manual-reward path.
	IssueForReward(ctx context.Context, tx *gorm.DB, customer *models.Customer, merchant *models.Merchant, reward *models.Reward, now time.Time) (*models.Coupon, error)
	// Redeem marks the coupon used. Replays and expired codes fail with
	// CodeStateConflict; unknown codes with CodeNotFound.
	Redeem(ctx context.Context, merchantID uuid.UUID, code string) (*models.Coupon, error)
}

type issuer struct {
	dbc        dbpkg.TxRunner
	repo       Repository
	rewardRepo rewards.Repository
	notifRepo  notifications.Repository
	events     outbox.Emitter
	cfg        config.LoyaltyConfig
	logg       *logger.Logger
}

// NewIssuer wires the coupon issuer. All dependencies are required.
func NewIssuer(
	dbc dbpkg.TxRunner,
	repo Repository,
	rewardRepo rewards.Repository,
	notifRepo notifications.Repository,
	events outbox.Emitter,
	cfg config.LoyaltyConfig,
	logg *logger.Logger,
) (Issuer, error) {
	if dbc == nil {
		return nil, fmt.Errorf("coupons: database client is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("coupons: coupon repository is required")
	}
	if rewardRepo == nil {
		return nil, fmt.Errorf("coupons: reward repository is required")
	}
	if notifRepo == nil {
		return nil, fmt.Errorf("coupons: notification repository is required")
	}
	if events == nil {
		return nil, fmt.Errorf("coupons: outbox service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("coupons: logger is required")
	}
	if cfg.CouponValidityDays <= 0 {
		return nil, fmt.Errorf("coupons: coupon validity days must be positive")
	}
	if cfg.CouponCodeLength <= 0 {
		return nil, fmt.Errorf("coupons: coupon code length must be positive")
	}
	return &issuer{
		dbc:        dbc,
		repo:       repo,
		rewardRepo: rewardRepo,
		notifRepo:  notifRepo,
		events:     events,
		cfg:        cfg,
		logg:       logg,
	}, nil
}

func (s *issuer) IssueOnAward(ctx context.Context, tx *gorm.DB, input IssueInput) (*IssueResult, error) {
	if tx == nil {
		return nil, errors.New(errors.CodeInternal, "coupon issuance requires a transaction")
	}
	if input.Customer == nil || input.Merchant == nil {
		return nil, errors.New(errors.CodeInternal, "coupon issuance requires customer and merchant")
	}
	if input.BalanceAfter <= input.BalanceBefore {
		return &IssueResult{}, nil
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	rules, err := s.rewardRepo.WithTx(tx).ListEnabledByMerchant(ctx, input.Merchant.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load reward rules")
	}
	issued := make(map[uuid.UUID]int)
	rule := nextConsumableRule(rules, issued, now)
	if rule == nil {
		// An award with no active rule is a merchant misconfiguration. It
		// must surface as an alert rather than vanish; the alert itself is
		// deduplicated per merchant so repeated awards do not spam.
		if err := s.flagMissingRule(ctx, tx, input); err != nil {
			return nil, err
		}
		return &IssueResult{RuleMissing: true}, nil
	}

	crossings := thresholdCrossings(input.BalanceBefore, input.BalanceAfter, rule.PointsRequired)
	if crossings == 0 {
		return &IssueResult{}, nil
	}

	result := &IssueResult{Coupons: make([]models.Coupon, 0, crossings)}
	for i := int64(0); i < crossings; i++ {
		coupon, err := s.issueOne(ctx, tx, input.Customer, input.Merchant, rule, now)
		if err != nil {
			return nil, err
		}
		result.Coupons = append(result.Coupons, *coupon)
		issued[rule.ID]++

		// Re-pick after every issuance so a max_uses cap is honored within
		// a single multi-crossing award, falling through to the merchant's
		// next rule when one runs out.
		rule = nextConsumableRule(rules, issued, now)
		if rule == nil {
			break
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"merchant_id": input.Merchant.ID.String(),
		"customer_id": input.Customer.ID.String(),
		"coupons":     len(result.Coupons),
		"crossings":   crossings,
	})
	s.logg.Info(logCtx, "coupons issued for threshold crossings")
	return result, nil
}

func (s *issuer) IssueForReward(ctx context.Context, tx *gorm.DB, customer *models.Customer, merchant *models.Merchant, reward *models.Reward, now time.Time) (*models.Coupon, error) {
	if tx == nil {
		return nil, errors.New(errors.CodeInternal, "coupon issuance requires a transaction")
	}
	if customer == nil || merchant == nil || reward == nil {
		return nil, errors.New(errors.CodeInternal, "coupon issuance requires customer, merchant, and reward")
	}
	if now.IsZero() {
		now = time.Now()
	}
	if !reward.ActiveAt(now) {
		return nil, errors.New(errors.CodeStateConflict, "reward rule is not active")
	}
	return s.issueOne(ctx, tx, customer, merchant, reward, now)
}

func (s *issuer) Redeem(ctx context.Context, merchantID uuid.UUID, code string) (*models.Coupon, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id is required")
	}
	if code == "" {
		return nil, errors.New(errors.CodeValidation, "coupon code is required")
	}

	var redeemed *models.Coupon
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		coupon, err := repo.FindByCode(ctx, merchantID, code)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to load coupon")
		}
		if coupon == nil {
			return errors.New(errors.CodeNotFound, "coupon not found")
		}

		usedAt := time.Now()
		ok, err := repo.MarkUsed(ctx, coupon.ID, usedAt)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to mark coupon used")
		}
		if !ok {
			if coupon.Used {
				return errors.New(errors.CodeStateConflict, "coupon already redeemed")
			}
			return errors.New(errors.CodeStateConflict, "coupon expired")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventCouponRedeemed,
			AggregateType: enums.AggregateCoupon,
			AggregateID:   coupon.ID,
			Data: payloads.CouponRedeemedEvent{
				MerchantID: coupon.MerchantID,
				CustomerID: coupon.CustomerID,
				CouponID:   coupon.ID,
				Code:       coupon.Code,
				UsedAt:     usedAt,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to queue coupon redeemed event")
		}

		coupon.Used = true
		coupon.UsedAt = &usedAt
		redeemed = coupon
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"merchant_id": merchantID.String(),
		"coupon_id":   redeemed.ID.String(),
	})
	s.logg.Info(logCtx, "coupon redeemed")
	return redeemed, nil
}

func (s *issuer) issueOne(ctx context.Context, tx *gorm.DB, customer *models.Customer, merchant *models.Merchant, reward *models.Reward, now time.Time) (*models.Coupon, error) {
	repo := s.repo.WithTx(tx)

	var coupon *models.Coupon
	for attempt := 0; attempt < codeGenerateAttempts; attempt++ {
		code, err := GenerateCode(s.cfg.CouponCodeLength)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "failed to generate coupon code")
		}
		candidate := &models.Coupon{
			MerchantID: merchant.ID,
			CustomerID: customer.ID,
			RewardID:   reward.ID,
			Code:       code,
			ExpiresAt:  now.AddDate(0, 0, s.cfg.CouponValidityDays),
		}
		if err := repo.Create(ctx, candidate); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_coupons_code") {
				continue
			}
			return nil, errors.Wrap(errors.CodeInternal, err, "failed to persist coupon")
		}
		coupon = candidate
		break
	}
	if coupon == nil {
		return nil, errors.New(errors.CodeInternal, "coupon code space exhausted")
	}

	if err := s.rewardRepo.WithTx(tx).IncrementTimesUsed(ctx, reward.ID); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to count reward usage")
	}

	email := ""
	if customer.Email != nil {
		email = *customer.Email
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventCouponIssued,
		AggregateType: enums.AggregateCoupon,
		AggregateID:   coupon.ID,
		Data: payloads.CouponIssuedEvent{
			MerchantID:    merchant.ID,
			CustomerID:    customer.ID,
			CouponID:      coupon.ID,
			RewardID:      reward.ID,
			Code:          coupon.Code,
			RewardType:    reward.RewardType,
			ExpiresAt:     coupon.ExpiresAt,
			CustomerEmail: email,
			CustomerName:  customer.Name,
			Locale:        merchant.Locale,
			NotifyEnabled: merchant.LoyaltySettings.NotifyEnabled(string(enums.EventCouponIssued)),
		},
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to queue coupon issued event")
	}
	return coupon, nil
}

// nextConsumableRule picks the first listed rule that is active and still has
// uses left. issued carries the coupons granted earlier in the same award, so
// the in-memory TimesUsed snapshot cannot let one movement blow past a
// max_uses cap.
func nextConsumableRule(rules []models.Reward, issued map[uuid.UUID]int, now time.Time) *models.Reward {
	for i := range rules {
		rule := &rules[i]
		if !rule.ActiveAt(now) {
			continue
		}
		if rule.MaxUses != nil && rule.TimesUsed+issued[rule.ID] >= *rule.MaxUses {
			continue
		}
		return rule
	}
	return nil
}

func (s *issuer) flagMissingRule(ctx context.Context, tx *gorm.DB, input IssueInput) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventRewardConfigMissing,
		AggregateType: enums.AggregateMerchant,
		AggregateID:   input.Merchant.ID,
		Data: payloads.RewardConfigMissingEvent{
			MerchantID: input.Merchant.ID,
			CustomerID: input.Customer.ID,
			Balance:    input.BalanceAfter,
		},
	}
	emitted, err := s.events.EmitIfNotExists(ctx, tx, event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "failed to queue reward gap event")
	}
	if emitted {
		notification := &models.Notification{
			MerchantID: input.Merchant.ID,
			Type:       enums.NotificationTypeRewardConfigGap,
			Title:      gapTitle(input.Merchant.Locale),
			Message:    gapMessage(input.Merchant.Locale, input.BalanceAfter),
		}
		if err := s.notifRepo.WithTx(tx).Create(ctx, notification); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to record reward gap notification")
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"merchant_id": input.Merchant.ID.String(),
		"customer_id": input.Customer.ID.String(),
		"balance":     input.BalanceAfter,
	})
	s.logg.Warn(logCtx, "points awarded with no active reward rule")
	return nil
}

// thresholdCrossings counts how many multiples of required sit strictly above
// before and at or below after. 95→105 with a 100-point rule is one crossing;
// 50→310 with the same rule is three.
func thresholdCrossings(before, after, required int64) int64 {
	if required <= 0 || after <= before {
		return 0
	}
	if before < 0 {
		before = 0
	}
	return after/required - before/required
}

func gapTitle(locale string) string {
	if locale == "ar" {
		return "لا توجد مكافأة نشطة"
	}
	return "No active reward rule"
}

func gapMessage(locale string, balance int64) string {
	if locale == "ar" {
		return fmt.Sprintf("تجاوز أحد عملائك حد النقاط (الرصيد %d) ولا توجد مكافأة نشطة لإصدار قسيمة. فعّل مكافأة حتى لا يفقد عملاؤك قسائمهم.", balance)
	}
	return fmt.Sprintf("A customer crossed a points threshold (balance %d) but no reward rule is active, so no coupon was issued. Enable a reward so your customers do not miss out.", balance)
}
