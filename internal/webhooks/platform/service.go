package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/internal/engine"
	dbpkg "github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

// Event is one webhook delivery from the commerce platform, already
// signature-verified by the HTTP layer.
type Event struct {
	DeliveryID string           `json:"deliveryId"`
	Type       string           `json:"type"`
	StoreID    string           `json:"storeId"`
	Customer   CustomerPayload  `json:"customer"`
	Order      *OrderPayload    `json:"order,omitempty"`
	Review     *ReviewPayload   `json:"review,omitempty"`
	Referral   *ReferralPayload `json:"referral,omitempty"`
}

type CustomerPayload struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Email        *string    `json:"email,omitempty"`
	BirthdayDate *time.Time `json:"birthdayDate,omitempty"`
}

type OrderPayload struct {
	ID    string          `json:"id"`
	Total decimal.Decimal `json:"total"`
}

type ReviewPayload struct {
	ID        string `json:"id"`
	Rating    int    `json:"rating"`
	ProductID string `json:"productId,omitempty"`
	Target    string `json:"target,omitempty"`
}

type ReferralPayload struct {
	ShareCount int    `json:"shareCount"`
	ShareDate  string `json:"shareDate,omitempty"`
}

// Result summarizes what one webhook delivery did once translated into
// engine invocations.
type Result struct {
	Invocations   int
	PointsApplied int64
	CouponsIssued int
}

type merchantResolver interface {
	FindByPlatformStoreID(ctx context.Context, platformStoreID string) (*models.Merchant, error)
}

// Service translates platform webhook deliveries into engine invocations.
// Each translated invocation is deduplicated through the webhook_deliveries
// table, so upstream retries of the same delivery are acknowledged without
// a second award. This is a deliberate tightening over the upstream
// platform's at-least-once contract.
type Service struct {
	engine     engine.Service
	merchants  merchantResolver
	deliveries DeliveryRepository
	logg       *logger.Logger
}

// NewService wires the webhook translator.
func NewService(eng engine.Service, merchants merchantResolver, deliveries DeliveryRepository, logg *logger.Logger) (*Service, error) {
	if eng == nil {
		return nil, fmt.Errorf("webhooks: engine is required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("webhooks: merchant resolver is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("webhooks: delivery repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("webhooks: logger is required")
	}
	return &Service{engine: eng, merchants: merchants, deliveries: deliveries, logg: logg}, nil
}

// HandleEvent processes one delivery. A replayed delivery returns
// CodeIdempotency so the HTTP layer can acknowledge it without side effects.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*Result, error) {
	if event.StoreID == "" {
		return nil, errors.New(errors.CodeValidation, "storeId is required")
	}
	if event.Customer.ID == "" {
		return nil, errors.New(errors.CodeValidation, "customer.id is required")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"webhook_type":      event.Type,
		"platform_store_id": event.StoreID,
		"delivery_id":       event.DeliveryID,
	})

	merchant, err := s.merchants.FindByPlatformStoreID(ctx, event.StoreID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to resolve merchant")
	}
	if merchant == nil {
		// Uninstalled or unknown stores still get a 2xx so the platform
		// stops retrying.
		s.logg.Warn(logCtx, "webhook for unknown store dropped")
		return &Result{}, nil
	}

	invocations, err := s.translate(logCtx, merchant, event)
	if err != nil {
		return nil, err
	}
	if len(invocations) == 0 {
		s.logg.Info(logCtx, "webhook type not mapped to a loyalty event")
		return &Result{}, nil
	}

	result := &Result{}
	for _, invocation := range invocations {
		applied, err := s.dispatchOnce(logCtx, merchant, invocation)
		if err != nil {
			if appErr := errors.As(err); appErr != nil && appErr.Code() == errors.CodeIdempotency {
				s.logg.Info(logCtx, "duplicate webhook delivery acknowledged")
				continue
			}
			return nil, err
		}
		if applied == nil || applied.NoOp {
			continue
		}
		result.Invocations++
		result.PointsApplied += applied.AppliedDelta
		result.CouponsIssued += applied.CouponsIssued
	}
	return result, nil
}

type invocation struct {
	input    engine.InvokeInput
	dedupKey string
}

// translate maps one platform webhook onto the loyalty events it implies.
// An order creation fans out into the base purchase award plus the
// independent amount-threshold bonus, each with its own ledger entry.
func (s *Service) translate(ctx context.Context, merchant *models.Merchant, event Event) ([]invocation, error) {
	customer := engine.CustomerRef{
		PlatformCustomerID: event.Customer.ID,
		Name:               event.Customer.Name,
		Email:              event.Customer.Email,
		BirthdayDate:       event.Customer.BirthdayDate,
	}
	merchantRef := engine.MerchantRef{PlatformStoreID: event.StoreID}

	switch event.Type {
	case "order.created":
		if event.Order == nil || event.Order.ID == "" {
			return nil, errors.New(errors.CodeValidation, "order payload is required")
		}
		meta := engine.EventMetadata{Amount: event.Order.Total, OrderID: event.Order.ID}
		return []invocation{
			{
				input:    engine.InvokeInput{Event: enums.EventPurchase, Merchant: merchantRef, Customer: customer, Metadata: meta},
				dedupKey: event.Order.ID,
			},
			{
				input:    engine.InvokeInput{Event: enums.EventPurchaseAmountThreshold, Merchant: merchantRef, Customer: customer, Metadata: meta},
				dedupKey: event.Order.ID,
			},
		}, nil

	case "order.cancelled", "order.refunded", "order.deleted":
		if event.Order == nil || event.Order.ID == "" {
			return nil, errors.New(errors.CodeValidation, "order payload is required")
		}
		points := engine.ComputePoints(enums.EventPurchase, merchant.LoyaltySettings, engine.EventMetadata{
			Amount:  event.Order.Total,
			OrderID: event.Order.ID,
		})
		if points <= 0 {
			return nil, nil
		}
		return []invocation{{
			input: engine.InvokeInput{
				Event:    enums.EventPointsDeduction,
				Merchant: merchantRef,
				Customer: customer,
				Metadata: engine.EventMetadata{
					OrderID:        event.Order.ID,
					PointsDeducted: points,
					Reason:         deductionReason(event.Type),
				},
			},
			dedupKey: event.Order.ID,
		}}, nil

	case "customer.created":
		return []invocation{{
			input: engine.InvokeInput{
				Event:    enums.EventWelcome,
				Merchant: merchantRef,
				Customer: customer,
				Metadata: engine.EventMetadata{Source: "platform_webhook"},
			},
			dedupKey: event.Customer.ID,
		}}, nil

	case "review.created":
		if event.Review == nil {
			return nil, errors.New(errors.CodeValidation, "review payload is required")
		}
		loyaltyEvent := enums.EventRatingProduct
		if event.Review.Target == "app" {
			loyaltyEvent = enums.EventRatingApp
		}
		return []invocation{{
			input: engine.InvokeInput{
				Event:    loyaltyEvent,
				Merchant: merchantRef,
				Customer: customer,
				Metadata: engine.EventMetadata{Rating: event.Review.Rating, ProductID: event.Review.ProductID},
			},
			dedupKey: event.Review.ID,
		}}, nil

	case "referral.shared":
		if event.Referral == nil {
			return nil, errors.New(errors.CodeValidation, "referral payload is required")
		}
		return []invocation{{
			input: engine.InvokeInput{
				Event:    enums.EventShareReferral,
				Merchant: merchantRef,
				Customer: customer,
				Metadata: engine.EventMetadata{ShareCount: event.Referral.ShareCount, ShareDate: event.Referral.ShareDate},
			},
			dedupKey: fmt.Sprintf("%s:%s", event.Customer.ID, event.Referral.ShareDate),
		}}, nil
	}

	return nil, nil
}

// dispatchOnce claims the dedup slot, then invokes the engine. An engine
// failure releases the slot so the platform's retry can try again; this
// keeps retried failures from being swallowed as duplicates.
func (s *Service) dispatchOnce(ctx context.Context, merchant *models.Merchant, inv invocation) (*engine.InvokeResult, error) {
	delivery := &models.WebhookDelivery{
		MerchantID: merchant.ID,
		Event:      inv.input.Event,
		DedupKey:   inv.dedupKey,
	}
	if err := s.deliveries.Insert(ctx, delivery); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_webhook_deliveries_dedup") {
			return nil, errors.New(errors.CodeIdempotency, "delivery already processed")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to record delivery")
	}

	result, err := s.engine.Invoke(ctx, inv.input)
	if err != nil {
		if deleteErr := s.deliveries.Delete(ctx, delivery.ID); deleteErr != nil {
			s.logg.Error(ctx, "failed to release dedup slot", deleteErr)
		}
		return nil, err
	}
	return result, nil
}

func deductionReason(webhookType string) string {
	switch webhookType {
	case "order.refunded":
		return string(enums.DeductionReasonOrderRefunded)
	case "order.deleted":
		return string(enums.DeductionReasonOrderDeleted)
	default:
		return string(enums.DeductionReasonOrderCancelled)
	}
}
