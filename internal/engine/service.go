package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/internal/coupons"
	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/ledger"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	dbpkg "github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/payloads"
)

// MerchantRef identifies the tenant an event belongs to. Callers pass the
// upstream platform's store identifier; the engine resolves it to a local
// merchant.
type MerchantRef struct {
	PlatformStoreID string
}

// CustomerRef identifies the shopper. Profile fields are only consulted when
// the welcome event auto-enrolls a customer that does not exist yet.
type CustomerRef struct {
	PlatformCustomerID string
	Name               string
	Email              *string
	BirthdayDate       *time.Time
}

// InvokeInput is one loyalty event delivered to the engine.
type InvokeInput struct {
	Event    enums.LoyaltyEvent
	Merchant MerchantRef
	Customer CustomerRef
	Metadata EventMetadata
}

// InvokeResult reports what a completed invocation changed. A no-op
// invocation returns a zero result with NoOp set.
type InvokeResult struct {
	NoOp          bool
	NoOpReason    string
	AppliedDelta  int64
	Balance       int64
	Tier          enums.Tier
	TierChanged   bool
	CouponsIssued int
}

// Service is the engine dispatcher. One Invoke call is one synchronous pass:
// validate, resolve entities, compute points, apply the ledger write, check
// coupon thresholds, and queue notifications, all inside a single
// transaction scoped to the customer row lock.
type Service interface {
	Invoke(ctx context.Context, input InvokeInput) (*InvokeResult, error)
}

type service struct {
	dbc          dbpkg.TxRunner
	merchantRepo merchants.Repository
	customerRepo customers.Repository
	rewardRepo   rewards.Repository
	writer       ledger.Writer
	issuer       coupons.Issuer
	events       outbox.Emitter
	logg         *logger.Logger
}

// NewService wires the dispatcher. All dependencies are required.
func NewService(
	dbc dbpkg.TxRunner,
	merchantRepo merchants.Repository,
	customerRepo customers.Repository,
	rewardRepo rewards.Repository,
	writer ledger.Writer,
	issuer coupons.Issuer,
	events outbox.Emitter,
	logg *logger.Logger,
) (Service, error) {
	if dbc == nil {
		return nil, fmt.Errorf("engine: database client is required")
	}
	if merchantRepo == nil {
		return nil, fmt.Errorf("engine: merchant repository is required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("engine: customer repository is required")
	}
	if rewardRepo == nil {
		return nil, fmt.Errorf("engine: reward repository is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("engine: ledger writer is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("engine: coupon issuer is required")
	}
	if events == nil {
		return nil, fmt.Errorf("engine: outbox emitter is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("engine: logger is required")
	}
	return &service{
		dbc:          dbc,
		merchantRepo: merchantRepo,
		customerRepo: customerRepo,
		rewardRepo:   rewardRepo,
		writer:       writer,
		issuer:       issuer,
		events:       events,
		logg:         logg,
	}, nil
}

func (s *service) Invoke(ctx context.Context, input InvokeInput) (*InvokeResult, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":                input.Event,
		"platform_store_id":    input.Merchant.PlatformStoreID,
		"platform_customer_id": input.Customer.PlatformCustomerID,
	})

	if !input.Event.IsValid() {
		// Unknown events are dropped without a ledger write. Logged so a
		// misconfigured integration is visible in metrics, not silent.
		s.logg.Warn(logCtx, "unknown loyalty event dropped")
		return &InvokeResult{NoOp: true, NoOpReason: "unknown event"}, nil
	}
	if input.Merchant.PlatformStoreID == "" || input.Customer.PlatformCustomerID == "" {
		s.logg.Warn(logCtx, "event missing merchant or customer reference")
		return &InvokeResult{NoOp: true, NoOpReason: "missing reference"}, nil
	}

	merchant, err := s.merchantRepo.FindByPlatformStoreID(ctx, input.Merchant.PlatformStoreID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to resolve merchant")
	}
	if merchant == nil {
		s.logg.Warn(logCtx, "event for unknown merchant dropped")
		return &InvokeResult{NoOp: true, NoOpReason: "unknown merchant"}, nil
	}
	logCtx = s.logg.WithMerchantID(logCtx, merchant.ID.String())

	switch input.Event {
	case enums.EventManualReward:
		return s.invokeManualReward(logCtx, merchant, input)
	case enums.EventPointsDeduction:
		return s.invokeDeduction(logCtx, merchant, input)
	default:
		return s.invokeAward(logCtx, merchant, input)
	}
}

func (s *service) invokeAward(ctx context.Context, merchant *models.Merchant, input InvokeInput) (*InvokeResult, error) {
	delta := ComputePoints(input.Event, merchant.LoyaltySettings, input.Metadata)
	if delta <= 0 {
		s.logg.Info(ctx, "event produced no points")
		return &InvokeResult{NoOp: true, NoOpReason: "rule disabled or zero points"}, nil
	}

	var result *InvokeResult
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := s.lockOrEnroll(ctx, tx, merchant, input)
		if err != nil {
			return err
		}
		if customer == nil {
			result = &InvokeResult{NoOp: true, NoOpReason: "unknown customer"}
			return nil
		}

		applied, err := s.applyAndEmit(ctx, tx, merchant, customer, delta, input)
		if err != nil {
			return err
		}

		issued, err := s.issuer.IssueOnAward(ctx, tx, coupons.IssueInput{
			Customer:      customer,
			Merchant:      merchant,
			BalanceBefore: applied.BalanceBefore,
			BalanceAfter:  applied.BalanceAfter,
		})
		if err != nil {
			return err
		}

		if input.Event == enums.EventShareReferral {
			if err := s.customerRepo.WithTx(tx).IncrementShareCount(ctx, customer.ID); err != nil {
				return errors.Wrap(errors.CodeInternal, err, "failed to count referral share")
			}
		}

		result = &InvokeResult{
			AppliedDelta:  applied.AppliedDelta,
			Balance:       applied.BalanceAfter,
			Tier:          applied.TierAfter,
			TierChanged:   applied.TierChanged,
			CouponsIssued: len(issued.Coupons),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.NoOp {
		s.logg.Warn(ctx, "event for unknown customer dropped")
		return result, nil
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"points":  result.AppliedDelta,
		"balance": result.Balance,
		"coupons": result.CouponsIssued,
	}), "loyalty award applied")
	return result, nil
}

func (s *service) invokeDeduction(ctx context.Context, merchant *models.Merchant, input InvokeInput) (*InvokeResult, error) {
	if input.Metadata.PointsDeducted <= 0 {
		return nil, errors.New(errors.CodeValidation, "pointsDeducted must be positive")
	}
	reason, err := enums.ParseDeductionReason(input.Metadata.Reason)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "invalid deduction reason")
	}

	var result *InvokeResult
	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := s.customerRepo.WithTx(tx).FindByExternalIDForUpdate(ctx, merchant.ID, input.Customer.PlatformCustomerID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to lock customer")
		}
		if customer == nil {
			result = &InvokeResult{NoOp: true, NoOpReason: "unknown customer"}
			return nil
		}

		applied, err := s.applyAndEmit(ctx, tx, merchant, customer, -input.Metadata.PointsDeducted, input)
		if err != nil {
			return err
		}

		result = &InvokeResult{
			AppliedDelta: applied.AppliedDelta,
			Balance:      applied.BalanceAfter,
			Tier:         applied.TierAfter,
			TierChanged:  applied.TierChanged,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.NoOp {
		s.logg.Warn(ctx, "deduction for unknown customer dropped")
		return result, nil
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"points":  result.AppliedDelta,
		"balance": result.Balance,
		"reason":  reason,
	}), "loyalty deduction applied")
	return result, nil
}

func (s *service) invokeManualReward(ctx context.Context, merchant *models.Merchant, input InvokeInput) (*InvokeResult, error) {
	rewardID, err := uuid.Parse(input.Metadata.RewardID)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "rewardId must be a valid uuid")
	}

	var result *InvokeResult
	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := s.customerRepo.WithTx(tx).FindByExternalIDForUpdate(ctx, merchant.ID, input.Customer.PlatformCustomerID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to lock customer")
		}
		if customer == nil {
			result = &InvokeResult{NoOp: true, NoOpReason: "unknown customer"}
			return nil
		}

		reward, err := s.rewardRepo.WithTx(tx).FindByID(ctx, rewardID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "failed to load reward")
		}
		if reward == nil || reward.MerchantID != merchant.ID {
			return errors.New(errors.CodeNotFound, "reward not found")
		}

		if _, err := s.issuer.IssueForReward(ctx, tx, customer, merchant, reward, time.Now()); err != nil {
			return err
		}

		result = &InvokeResult{
			Balance:       customer.Points,
			Tier:          customer.Tier,
			CouponsIssued: 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.NoOp {
		s.logg.Warn(ctx, "manual reward for unknown customer dropped")
		return result, nil
	}

	s.logg.Info(s.logg.WithField(ctx, "reward_id", rewardID.String()), "manual reward issued")
	return result, nil
}

// lockOrEnroll loads the customer under a row lock. The welcome event is the
// enrollment hook: a missing customer is created on the spot from the
// caller-provided profile instead of being treated as a precondition miss.
func (s *service) lockOrEnroll(ctx context.Context, tx *gorm.DB, merchant *models.Merchant, input InvokeInput) (*models.Customer, error) {
	repo := s.customerRepo.WithTx(tx)
	customer, err := repo.FindByExternalIDForUpdate(ctx, merchant.ID, input.Customer.PlatformCustomerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to lock customer")
	}
	if customer != nil {
		return customer, nil
	}
	if input.Event != enums.EventWelcome {
		return nil, nil
	}

	customer = &models.Customer{
		MerchantID:         merchant.ID,
		PlatformCustomerID: input.Customer.PlatformCustomerID,
		Name:               input.Customer.Name,
		Email:              input.Customer.Email,
		BirthdayDate:       input.Customer.BirthdayDate,
		Tier:               enums.TierBronze,
	}
	// A duplicate insert aborts the whole transaction on Postgres, so the
	// insert runs under a savepoint the race-recovery reload can return to.
	const enrollSavepoint = "enroll_customer"
	if err := tx.SavePoint(enrollSavepoint).Error; err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to create enrollment savepoint")
	}
	if err := repo.Create(ctx, customer); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_customers_merchant_external") {
			// Lost an enrollment race; reload the winner under the lock.
			if rbErr := tx.RollbackTo(enrollSavepoint).Error; rbErr != nil {
				return nil, errors.Wrap(errors.CodeInternal, rbErr, "failed to recover from enrollment race")
			}
			customer, err = repo.FindByExternalIDForUpdate(ctx, merchant.ID, input.Customer.PlatformCustomerID)
			if err != nil {
				return nil, errors.Wrap(errors.CodeInternal, err, "failed to reload customer")
			}
			return customer, nil
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to enroll customer")
	}
	s.logg.Info(ctx, "customer enrolled on welcome event")
	return customer, nil
}

// applyAndEmit runs the ledger write and queues the points and tier events
// that describe it. Emails ride on the outbox so a mail outage cannot roll
// back the financial write.
func (s *service) applyAndEmit(ctx context.Context, tx *gorm.DB, merchant *models.Merchant, customer *models.Customer, delta int64, input InvokeInput) (*ledger.ApplyDeltaResult, error) {
	metadata, err := json.Marshal(input.Metadata)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to encode event metadata")
	}

	applied, err := s.writer.ApplyDelta(ctx, tx, ledger.ApplyDeltaInput{
		Customer: customer,
		Merchant: merchant,
		Delta:    delta,
		Event:    input.Event,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	eventType := enums.EventPointsAwarded
	if applied.AppliedDelta < 0 {
		eventType = enums.EventPointsDeducted
	}
	email := ""
	if customer.Email != nil {
		email = *customer.Email
	}
	pointsEvent := payloads.PointsChangedEvent{
		MerchantID:    merchant.ID,
		CustomerID:    customer.ID,
		Event:         input.Event,
		Points:        applied.AppliedDelta,
		Balance:       applied.BalanceAfter,
		Tier:          applied.TierAfter,
		Reason:        enums.DeductionReason(input.Metadata.Reason),
		CustomerEmail: email,
		CustomerName:  customer.Name,
		Locale:        merchant.Locale,
		NotifyEnabled: merchant.LoyaltySettings.NotifyEnabled(string(eventType)),
	}
	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   customer.ID,
		Data:          pointsEvent,
	}); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to queue points event")
	}

	if applied.TierChanged {
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTierChanged,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   customer.ID,
			Data: payloads.TierChangedEvent{
				MerchantID: merchant.ID,
				CustomerID: customer.ID,
				From:       applied.TierBefore,
				To:         applied.TierAfter,
				Balance:    applied.BalanceAfter,
			},
		}); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "failed to queue tier event")
		}
	}
	return applied, nil
}
