package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/ledger"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type customerResponse struct {
	ID                 uuid.UUID `json:"id"`
	PlatformCustomerID string    `json:"platformCustomerId"`
	Name               string    `json:"name,omitempty"`
	Email              *string   `json:"email,omitempty"`
	Points             int64     `json:"points"`
	Tier               string    `json:"tier"`
	ShareCount         int       `json:"shareCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

type activityResponse struct {
	ID        uuid.UUID `json:"id"`
	Event     string    `json:"event"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomerGet returns one enrolled customer by platform id, with balance
// and tier.
func CustomerGet(repo customers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		externalID := strings.TrimSpace(chi.URLParam(r, "customerID"))
		if externalID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required"))
			return
		}

		customer, err := repo.FindByExternalID(r.Context(), merchantID, externalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if customer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "customer not enrolled"))
			return
		}
		responses.WriteSuccess(w, customerResponse{
			ID:                 customer.ID,
			PlatformCustomerID: customer.PlatformCustomerID,
			Name:               customer.Name,
			Email:              customer.Email,
			Points:             customer.Points,
			Tier:               string(customer.Tier),
			ShareCount:         customer.ShareCount,
			CreatedAt:          customer.CreatedAt,
		})
	}
}

// CustomerActivity returns the customer's ledger entries, newest first.
func CustomerActivity(customerRepo customers.Repository, ledgerRepo ledger.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		externalID := strings.TrimSpace(chi.URLParam(r, "customerID"))
		if externalID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required"))
			return
		}
		params, err := validators.PaginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := customerRepo.FindByExternalID(r.Context(), merchantID, externalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if customer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "customer not enrolled"))
			return
		}

		entries, err := ledgerRepo.ListByCustomer(r.Context(), customer.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]activityResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, activityResponse{
				ID:        entry.ID,
				Event:     string(entry.Event),
				Points:    entry.Points,
				CreatedAt: entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
