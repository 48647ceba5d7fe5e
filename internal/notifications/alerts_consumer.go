package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/mailer"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/payloads"
)

const alertsConsumerName = "admin-alerts"

// AlertsConsumer delivers merchant-facing alert emails. The in-app
// notification row is written transactionally by the producer; this consumer
// only handles the email leg, so a mail outage never loses the alert.
type AlertsConsumer struct {
	subscription *pubsub.Subscriber
	sender       mailer.Sender
	merchants    merchantFinder
	idempotency  idempotencyChecker
	logg         *logger.Logger
}

// NewAlertsConsumer builds the merchant alert consumer.
func NewAlertsConsumer(
	subscription *pubsub.Subscriber,
	sender mailer.Sender,
	merchants merchantFinder,
	manager idempotencyChecker,
	logg *logger.Logger,
) (*AlertsConsumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant finder required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AlertsConsumer{
		subscription: subscription,
		sender:       sender,
		merchants:    merchants,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *AlertsConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *AlertsConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventRewardConfigMissing) {
		c.logg.Info(logCtx, "event not handled by alerts consumer")
		return processResult{}
	}

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

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, alertsConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := c.handleRewardGap(logCtx, envelope); err != nil {
		c.logg.Error(logCtx, "alert handling failed", err)
		_ = c.idempotency.Delete(ctx, alertsConsumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{}
}

func (c *AlertsConsumer) handleRewardGap(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var payload payloads.RewardConfigMissingEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode reward gap payload: %w", err)
	}

	merchant, err := c.merchants.FindByID(ctx, payload.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant: %w", err)
	}
	if merchant == nil {
		c.logg.Warn(ctx, "reward gap references missing merchant")
		return nil
	}
	if merchant.Email == nil || *merchant.Email == "" {
		c.logg.Info(ctx, "merchant has no email on file")
		return nil
	}

	msg := rewardGapEmail(*merchant.Email, merchant.Name, merchant.Locale, payload.Balance, envelope.OccurredAt)
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reward gap email: %w", err)
	}
	c.logg.Info(ctx, "reward gap email sent")
	return nil
}
