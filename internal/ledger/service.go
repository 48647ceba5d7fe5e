package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/internal/tiers"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

// Writer applies signed point deltas to a customer and records the matching
// ledger entry. Every mutation of customer.points in the system goes through
// ApplyDelta.
type Writer interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, input ApplyDeltaInput) (*ApplyDeltaResult, error)
}

// ApplyDeltaInput carries the locked customer row, its merchant, and the
// requested signed delta. The caller owns the transaction and the row lock.
type ApplyDeltaInput struct {
	Customer *models.Customer
	Merchant *models.Merchant
	Delta    int64
	Event    enums.LoyaltyEvent
	Metadata json.RawMessage
}

// ApplyDeltaResult reports the applied (possibly clamped) delta and the
// resulting balance and tier.
type ApplyDeltaResult struct {
	AppliedDelta  int64
	BalanceBefore int64
	BalanceAfter  int64
	TierBefore    enums.Tier
	TierAfter     enums.Tier
	TierChanged   bool
	Entry         *models.LoyaltyActivity
}

type writer struct {
	ledgerRepo   Repository
	customerRepo customers.Repository
	merchantRepo merchants.Repository
}

// NewWriter wires the ledger writer with its repositories.
func NewWriter(ledgerRepo Repository, customerRepo customers.Repository, merchantRepo merchants.Repository) (Writer, error) {
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if merchantRepo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	return &writer{
		ledgerRepo:   ledgerRepo,
		customerRepo: customerRepo,
		merchantRepo: merchantRepo,
	}, nil
}

func (w *writer) ApplyDelta(ctx context.Context, tx *gorm.DB, input ApplyDeltaInput) (*ApplyDeltaResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.Customer == nil {
		return nil, fmt.Errorf("customer is required")
	}
	if input.Merchant == nil {
		return nil, fmt.Errorf("merchant is required")
	}
	if !input.Event.IsValid() {
		return nil, fmt.Errorf("invalid loyalty event %q", input.Event)
	}

	before := input.Customer.Points

	// Deductions clamp at zero; the ledger records what was actually
	// deducted so the entries always sum to the balance.
	applied := input.Delta
	if applied < 0 && before+applied < 0 {
		applied = -before
	}
	after := before + applied

	tierBefore := input.Customer.Tier
	tierAfter := tiers.Resolve(after, input.Merchant.LoyaltySettings.Tiers)

	if err := w.customerRepo.WithTx(tx).UpdateBalance(ctx, input.Customer.ID, after, string(tierAfter)); err != nil {
		return nil, fmt.Errorf("update customer balance: %w", err)
	}

	entry := &models.LoyaltyActivity{
		MerchantID: input.Merchant.ID,
		CustomerID: input.Customer.ID,
		Event:      input.Event,
		Points:     applied,
		Metadata:   input.Metadata,
	}
	if err := w.ledgerRepo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	// Same transaction as the customer write, so the aggregate cannot drift
	// from committed ledger state. The reconciliation job remains the
	// authority if operators mutate rows out of band.
	if err := w.merchantRepo.WithTx(tx).AddCustomersPoints(ctx, input.Merchant.ID, applied); err != nil {
		return nil, fmt.Errorf("update merchant aggregate: %w", err)
	}

	input.Customer.Points = after
	input.Customer.Tier = tierAfter

	return &ApplyDeltaResult{
		AppliedDelta:  applied,
		BalanceBefore: before,
		BalanceAfter:  after,
		TierBefore:    tierBefore,
		TierAfter:     tierAfter,
		TierChanged:   tierBefore != tierAfter,
		Entry:         entry,
	}, nil
}
