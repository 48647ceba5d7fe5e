package platform

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/internal/engine"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

type fakeEngine struct {
	invoked []engine.InvokeInput
	results map[enums.LoyaltyEvent]*engine.InvokeResult
	err     error
}

func (f *fakeEngine) Invoke(ctx context.Context, input engine.InvokeInput) (*engine.InvokeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invoked = append(f.invoked, input)
	if r, ok := f.results[input.Event]; ok {
		return r, nil
	}
	return &engine.InvokeResult{}, nil
}

type fakeResolver struct {
	merchant *models.Merchant
}

func (f *fakeResolver) FindByPlatformStoreID(ctx context.Context, storeID string) (*models.Merchant, error) {
	if f.merchant != nil && f.merchant.PlatformStoreID == storeID {
		return f.merchant, nil
	}
	return nil, nil
}

type fakeDeliveryRepo struct {
	rows    map[string]uuid.UUID
	deleted []uuid.UUID
}

func (f *fakeDeliveryRepo) Insert(ctx context.Context, delivery *models.WebhookDelivery) error {
	if f.rows == nil {
		f.rows = map[string]uuid.UUID{}
	}
	key := delivery.MerchantID.String() + "/" + string(delivery.Event) + "/" + delivery.DedupKey
	if _, exists := f.rows[key]; exists {
		return &duplicateKeyError{}
	}
	delivery.ID = uuid.New()
	f.rows[key] = delivery.ID
	return nil
}

func (f *fakeDeliveryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	for key, rowID := range f.rows {
		if rowID == id {
			delete(f.rows, key)
		}
	}
	return nil
}

func (f *fakeDeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// duplicateKeyError mimics the Postgres unique violation surfaced by GORM.
type duplicateKeyError struct{}

func (*duplicateKeyError) Error() string {
	return `duplicate key value violates unique constraint "ux_webhook_deliveries_dedup" (SQLSTATE 23505)`
}

func testMerchant() *models.Merchant {
	return &models.Merchant{
		ID:              uuid.New(),
		PlatformStoreID: "store-1",
		Name:            "Test Store",
		LoyaltySettings: types.LoyaltySettings{
			Purchase: types.PurchaseRule{Enabled: true, PointsPerCurrencyUnit: decimal.NewFromInt(1)},
			Tiers:    types.TierThresholds{Bronze: 0, Silver: 100, Gold: 500, Platinum: 1000},
		},
	}
}

func newService(t *testing.T, eng *fakeEngine, merchant *models.Merchant, deliveries *fakeDeliveryRepo) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "webhooks-test", Level: zerolog.ErrorLevel, Output: io.Discard})
	svc, err := NewService(eng, &fakeResolver{merchant: merchant}, deliveries, logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func orderCreatedEvent(orderID string, total int64) Event {
	return Event{
		DeliveryID: "d-1",
		Type:       "order.created",
		StoreID:    "store-1",
		Customer:   CustomerPayload{ID: "cust-1", Name: "Shopper"},
		Order:      &OrderPayload{ID: orderID, Total: decimal.NewFromInt(total)},
	}
}

func TestHandleOrderCreatedFansOut(t *testing.T) {
	eng := &fakeEngine{results: map[enums.LoyaltyEvent]*engine.InvokeResult{
		enums.EventPurchase: {AppliedDelta: 250, Balance: 250, CouponsIssued: 2},
	}}
	svc := newService(t, eng, testMerchant(), &fakeDeliveryRepo{})

	result, err := svc.HandleEvent(context.Background(), orderCreatedEvent("o1", 250))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(eng.invoked) != 2 {
		t.Fatalf("expected purchase + threshold invocations, got %d", len(eng.invoked))
	}
	if eng.invoked[0].Event != enums.EventPurchase || eng.invoked[1].Event != enums.EventPurchaseAmountThreshold {
		t.Errorf("invocations = %s, %s", eng.invoked[0].Event, eng.invoked[1].Event)
	}
	if result.PointsApplied != 250 || result.CouponsIssued != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleDuplicateDeliveryIsAcknowledged(t *testing.T) {
	eng := &fakeEngine{}
	deliveries := &fakeDeliveryRepo{}
	svc := newService(t, eng, testMerchant(), deliveries)

	if _, err := svc.HandleEvent(context.Background(), orderCreatedEvent("o1", 100)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	invokedBefore := len(eng.invoked)

	result, err := svc.HandleEvent(context.Background(), orderCreatedEvent("o1", 100))
	if err != nil {
		t.Fatalf("replayed delivery must not error: %v", err)
	}
	if len(eng.invoked) != invokedBefore {
		t.Errorf("replay reached the engine: %d invocations", len(eng.invoked)-invokedBefore)
	}
	if result.Invocations != 0 {
		t.Errorf("replay reported %d invocations", result.Invocations)
	}
}

func TestHandleEngineFailureReleasesDedupSlot(t *testing.T) {
	eng := &fakeEngine{err: context.DeadlineExceeded}
	deliveries := &fakeDeliveryRepo{}
	svc := newService(t, eng, testMerchant(), deliveries)

	if _, err := svc.HandleEvent(context.Background(), orderCreatedEvent("o1", 100)); err == nil {
		t.Fatal("expected engine failure to propagate")
	}
	if len(deliveries.deleted) == 0 {
		t.Fatal("dedup slot not released after failure")
	}

	// The platform retry must now be processed, not treated as duplicate.
	eng.err = nil
	if _, err := svc.HandleEvent(context.Background(), orderCreatedEvent("o1", 100)); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if len(eng.invoked) == 0 {
		t.Error("retry never reached the engine")
	}
}

func TestHandleOrderCancelledDeducts(t *testing.T) {
	eng := &fakeEngine{results: map[enums.LoyaltyEvent]*engine.InvokeResult{
		enums.EventPointsDeduction: {AppliedDelta: -100, Balance: 0},
	}}
	svc := newService(t, eng, testMerchant(), &fakeDeliveryRepo{})

	event := orderCreatedEvent("o1", 100)
	event.Type = "order.cancelled"
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(eng.invoked) != 1 || eng.invoked[0].Event != enums.EventPointsDeduction {
		t.Fatalf("invocations = %+v", eng.invoked)
	}
	meta := eng.invoked[0].Metadata
	if meta.PointsDeducted != 100 {
		t.Errorf("pointsDeducted = %d, want 100", meta.PointsDeducted)
	}
	if meta.Reason != string(enums.DeductionReasonOrderCancelled) {
		t.Errorf("reason = %q", meta.Reason)
	}
	if result.PointsApplied != -100 {
		t.Errorf("points applied = %d", result.PointsApplied)
	}
}

func TestHandleCustomerCreatedMapsToWelcome(t *testing.T) {
	eng := &fakeEngine{results: map[enums.LoyaltyEvent]*engine.InvokeResult{
		enums.EventWelcome: {AppliedDelta: 10, Balance: 10},
	}}
	svc := newService(t, eng, testMerchant(), &fakeDeliveryRepo{})

	email := "new@example.com"
	_, err := svc.HandleEvent(context.Background(), Event{
		Type:     "customer.created",
		StoreID:  "store-1",
		Customer: CustomerPayload{ID: "cust-9", Name: "Newcomer", Email: &email},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(eng.invoked) != 1 || eng.invoked[0].Event != enums.EventWelcome {
		t.Fatalf("invocations = %+v", eng.invoked)
	}
	if eng.invoked[0].Customer.Email == nil || *eng.invoked[0].Customer.Email != email {
		t.Error("customer profile not forwarded for enrollment")
	}
}

func TestHandleUnknownStoreIsAcknowledged(t *testing.T) {
	eng := &fakeEngine{}
	svc := newService(t, eng, testMerchant(), &fakeDeliveryRepo{})

	event := orderCreatedEvent("o1", 100)
	event.StoreID = "other-store"
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("unknown store must not error: %v", err)
	}
	if len(eng.invoked) != 0 {
		t.Error("unknown store reached the engine")
	}
	if result.Invocations != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleUnmappedTypeIsAcknowledged(t *testing.T) {
	eng := &fakeEngine{}
	svc := newService(t, eng, testMerchant(), &fakeDeliveryRepo{})

	result, err := svc.HandleEvent(context.Background(), Event{
		Type:     "inventory.updated",
		StoreID:  "store-1",
		Customer: CustomerPayload{ID: "cust-1"},
	})
	if err != nil {
		t.Fatalf("unmapped type must not error: %v", err)
	}
	if len(eng.invoked) != 0 || result.Invocations != 0 {
		t.Errorf("unmapped type produced invocations: %+v", result)
	}
}
