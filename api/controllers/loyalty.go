package controllers

import (
	"net/http"
	"time"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/engine"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type invokeRequest struct {
	Event    string               `json:"event" validate:"required"`
	StoreID  string               `json:"storeId" validate:"required"`
	Customer invokeCustomer       `json:"customer" validate:"required"`
	Metadata engine.EventMetadata `json:"metadata"`
}

type invokeCustomer struct {
	ID           string     `json:"id" validate:"required"`
	Name         string     `json:"name,omitempty"`
	Email        *string    `json:"email,omitempty" validate:"omitempty,email"`
	BirthdayDate *time.Time `json:"birthdayDate,omitempty"`
}

type invokeResponse struct {
	NoOp          bool   `json:"noOp"`
	NoOpReason    string `json:"noOpReason,omitempty"`
	AppliedDelta  int64  `json:"appliedDelta"`
	Balance       int64  `json:"balance"`
	Tier          string `json:"tier,omitempty"`
	TierChanged   bool   `json:"tierChanged"`
	CouponsIssued int    `json:"couponsIssued"`
}

// LoyaltyInvoke runs the engine for a single event. This is the direct
// entry point used by the admin dashboard for manual rewards and deductions;
// platform traffic arrives through the webhook endpoint instead.
func LoyaltyInvoke(eng engine.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invokeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := enums.ParseLoyaltyEvent(req.Event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event"))
			return
		}

		result, err := eng.Invoke(r.Context(), engine.InvokeInput{
			Event:    event,
			Merchant: engine.MerchantRef{PlatformStoreID: req.StoreID},
			Customer: engine.CustomerRef{
				PlatformCustomerID: req.Customer.ID,
				Name:               req.Customer.Name,
				Email:              req.Customer.Email,
				BirthdayDate:       req.Customer.BirthdayDate,
			},
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invokeResponse{
			NoOp:          result.NoOp,
			NoOpReason:    result.NoOpReason,
			AppliedDelta:  result.AppliedDelta,
			Balance:       result.Balance,
			Tier:          string(result.Tier),
			TierChanged:   result.TierChanged,
			CouponsIssued: result.CouponsIssued,
		})
	}
}
