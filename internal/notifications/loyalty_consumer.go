package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/mailer"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/payloads"
)

const loyaltyConsumerName = "loyalty-notifications"

type merchantFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

type customerFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// LoyaltyConsumer turns loyalty domain events into customer-facing emails.
// Merchants can switch individual event emails off per event via their
// notification settings; the engine bakes that decision into the payload so
// the consumer never re-reads configuration.
type LoyaltyConsumer struct {
	subscription *pubsub.Subscriber
	sender       mailer.Sender
	merchants    merchantFinder
	customers    customerFinder
	idempotency  idempotencyChecker
	logg         *logger.Logger
}

// NewLoyaltyConsumer builds the customer email consumer.
func NewLoyaltyConsumer(
	subscription *pubsub.Subscriber,
	sender mailer.Sender,
	merchants merchantFinder,
	customers customerFinder,
	manager idempotencyChecker,
	logg *logger.Logger,
) (*LoyaltyConsumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("loyalty subscription required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant finder required")
	}
	if customers == nil {
		return nil, fmt.Errorf("customer finder required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LoyaltyConsumer{
		subscription: subscription,
		sender:       sender,
		merchants:    merchants,
		customers:    customers,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *LoyaltyConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *LoyaltyConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, loyaltyConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := c.handle(logCtx, eventType, envelope); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, loyaltyConsumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{}
}

func (c *LoyaltyConsumer) handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	switch eventType {
	case enums.EventPointsAwarded:
		return c.handlePointsChanged(ctx, envelope, false)
	case enums.EventPointsDeducted:
		return c.handlePointsChanged(ctx, envelope, true)
	case enums.EventTierChanged:
		return c.handleTierChanged(ctx, envelope)
	case enums.EventCouponIssued:
		return c.handleCouponIssued(ctx, envelope)
	case enums.EventCouponRedeemed:
		// No customer email on redemption; the shopper was present.
		c.logg.Info(ctx, "coupon redemption acknowledged")
		return nil
	default:
		c.logg.Info(ctx, "event not handled by loyalty consumer")
		return nil
	}
}

func (c *LoyaltyConsumer) handlePointsChanged(ctx context.Context, envelope outbox.PayloadEnvelope, deduction bool) error {
	var payload payloads.PointsChangedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode points payload: %w", err)
	}
	if !payload.NotifyEnabled {
		c.logg.Info(ctx, "customer email disabled for event")
		return nil
	}
	if payload.CustomerEmail == "" {
		c.logg.Info(ctx, "customer has no email on file")
		return nil
	}

	merchantName, err := c.merchantName(ctx, payload.MerchantID)
	if err != nil {
		return err
	}

	// Birthday and referral-share awards carry their own copy; every other
	// award falls back to the generic points email.
	var msg mailer.Message
	switch {
	case deduction:
		msg = pointsDeductedEmail(merchantName, payload)
	case payload.Event == enums.EventBirthday:
		msg = birthdayEmail(merchantName, payload)
	case payload.Event == enums.EventShareReferral:
		msg = referralShareEmail(merchantName, payload)
	default:
		msg = pointsAwardedEmail(merchantName, payload)
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send points email: %w", err)
	}
	c.logg.Info(ctx, "points email sent")
	return nil
}

func (c *LoyaltyConsumer) handleTierChanged(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var payload payloads.TierChangedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode tier payload: %w", err)
	}

	merchant, err := c.merchants.FindByID(ctx, payload.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant: %w", err)
	}
	customer, err := c.customers.FindByID(ctx, payload.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	if merchant == nil || customer == nil {
		c.logg.Warn(ctx, "tier change references missing merchant or customer")
		return nil
	}
	if !merchant.LoyaltySettings.NotifyEnabled(string(enums.EventTierChanged)) {
		c.logg.Info(ctx, "customer email disabled for event")
		return nil
	}
	if customer.Email == nil || *customer.Email == "" {
		c.logg.Info(ctx, "customer has no email on file")
		return nil
	}

	msg := tierChangedEmail(merchant.Name, *customer.Email, customer.Name, merchant.Locale, payload)
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send tier email: %w", err)
	}
	c.logg.Info(ctx, "tier change email sent")
	return nil
}

func (c *LoyaltyConsumer) handleCouponIssued(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var payload payloads.CouponIssuedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode coupon payload: %w", err)
	}
	if !payload.NotifyEnabled {
		c.logg.Info(ctx, "customer email disabled for event")
		return nil
	}
	if payload.CustomerEmail == "" {
		c.logg.Info(ctx, "customer has no email on file")
		return nil
	}

	merchantName, err := c.merchantName(ctx, payload.MerchantID)
	if err != nil {
		return err
	}
	msg := couponIssuedEmail(merchantName, payload)
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send coupon email: %w", err)
	}
	c.logg.Info(ctx, "coupon email sent")
	return nil
}

func (c *LoyaltyConsumer) merchantName(ctx context.Context, merchantID uuid.UUID) (string, error) {
	merchant, err := c.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return "", fmt.Errorf("load merchant: %w", err)
	}
	if merchant == nil {
		return "", fmt.Errorf("merchant %s not found", merchantID)
	}
	return merchant.Name, nil
}
