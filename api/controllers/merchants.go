package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

type onboardMerchantRequest struct {
	StoreID  string                `json:"storeId" validate:"required"`
	Name     string                `json:"name" validate:"required"`
	Email    *string               `json:"email,omitempty" validate:"omitempty,email"`
	Locale   string                `json:"locale,omitempty"`
	Settings types.LoyaltySettings `json:"settings"`
}

type merchantResponse struct {
	ID              uuid.UUID `json:"id"`
	PlatformStoreID string    `json:"storeId"`
	Name            string    `json:"name"`
	Email           *string   `json:"email,omitempty"`
	Locale          string    `json:"locale"`
	CustomersPoints int64     `json:"customersPoints"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toMerchantResponse(m *models.Merchant) merchantResponse {
	return merchantResponse{
		ID:              m.ID,
		PlatformStoreID: m.PlatformStoreID,
		Name:            m.Name,
		Email:           m.Email,
		Locale:          m.Locale,
		CustomersPoints: m.CustomersPoints,
		CreatedAt:       m.CreatedAt,
	}
}

// MerchantOnboard registers a store on app installation.
func MerchantOnboard(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req onboardMerchantRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		merchant, err := svc.Onboard(r.Context(), merchants.OnboardInput{
			PlatformStoreID: req.StoreID,
			Name:            req.Name,
			Email:           req.Email,
			Locale:          req.Locale,
			Settings:        req.Settings,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toMerchantResponse(merchant))
	}
}

// MerchantGet returns the merchant profile with its point aggregate.
func MerchantGet(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		merchant, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMerchantResponse(merchant))
	}
}

// MerchantSettingsGet returns the loyalty settings document.
func MerchantSettingsGet(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settings, err := svc.GetSettings(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

// MerchantSettingsUpdate replaces the loyalty settings document. The full
// document is required; partial updates would make the engine's view of a
// rule ambiguous.
func MerchantSettingsUpdate(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var settings types.LoyaltySettings
		if err := validators.DecodeJSONBody(r, &settings); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateSettings(r.Context(), id, settings); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

// MerchantUninstall marks the store uninstalled and stops future awards.
func MerchantUninstall(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}
		id, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Uninstall(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "uninstalled"})
	}
}
