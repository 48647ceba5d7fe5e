package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type createRewardRequest struct {
	Name           string          `json:"name" validate:"required"`
	PointsRequired int64           `json:"pointsRequired" validate:"required,min=1"`
	RewardType     string          `json:"rewardType" validate:"required"`
	RewardValue    decimal.Decimal `json:"rewardValue"`
	MaxUses        *int            `json:"maxUses,omitempty" validate:"omitempty,min=1"`
	ValidFrom      *time.Time      `json:"validFrom,omitempty"`
	ValidUntil     *time.Time      `json:"validUntil,omitempty"`
	Enabled        bool            `json:"enabled"`
}

type updateRewardRequest struct {
	Name           *string          `json:"name,omitempty"`
	PointsRequired *int64           `json:"pointsRequired,omitempty" validate:"omitempty,min=1"`
	RewardValue    *decimal.Decimal `json:"rewardValue,omitempty"`
	MaxUses        *int             `json:"maxUses,omitempty" validate:"omitempty,min=1"`
	ValidFrom      *time.Time       `json:"validFrom,omitempty"`
	ValidUntil     *time.Time       `json:"validUntil,omitempty"`
	Enabled        *bool            `json:"enabled,omitempty"`
}

type rewardResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	PointsRequired int64           `json:"pointsRequired"`
	RewardType     string          `json:"rewardType"`
	RewardValue    decimal.Decimal `json:"rewardValue"`
	MaxUses        *int            `json:"maxUses,omitempty"`
	TimesUsed      int             `json:"timesUsed"`
	ValidFrom      *time.Time      `json:"validFrom,omitempty"`
	ValidUntil     *time.Time      `json:"validUntil,omitempty"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toRewardResponse(reward *models.Reward) rewardResponse {
	return rewardResponse{
		ID:             reward.ID,
		Name:           reward.Name,
		PointsRequired: reward.PointsRequired,
		RewardType:     string(reward.RewardType),
		RewardValue:    reward.RewardValue,
		MaxUses:        reward.MaxUses,
		TimesUsed:      reward.TimesUsed,
		ValidFrom:      reward.ValidFrom,
		ValidUntil:     reward.ValidUntil,
		Enabled:        reward.Enabled,
		CreatedAt:      reward.CreatedAt,
	}
}

// RewardCreate defines a new coupon rule for the merchant.
func RewardCreate(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createRewardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rewardType, err := enums.ParseRewardType(req.RewardType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reward type"))
			return
		}

		reward, err := svc.Create(r.Context(), rewards.CreateRewardInput{
			MerchantID:     merchantID,
			Name:           req.Name,
			PointsRequired: req.PointsRequired,
			RewardType:     rewardType,
			RewardValue:    req.RewardValue,
			MaxUses:        req.MaxUses,
			ValidFrom:      req.ValidFrom,
			ValidUntil:     req.ValidUntil,
			Enabled:        req.Enabled,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toRewardResponse(reward))
	}
}

// RewardList returns the merchant's reward rules, enabled or not.
func RewardList(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), merchantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]rewardResponse, 0, len(list))
		for i := range list {
			out = append(out, toRewardResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RewardUpdate mutates a rule in place. Monetary and threshold changes only
// affect coupons issued after the update.
func RewardUpdate(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rewardID, err := validators.PathUUID(chi.URLParam(r, "rewardID"), "reward id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateRewardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reward, err := svc.Update(r.Context(), rewards.UpdateRewardInput{
			MerchantID:     merchantID,
			ID:             rewardID,
			Name:           req.Name,
			PointsRequired: req.PointsRequired,
			RewardValue:    req.RewardValue,
			MaxUses:        req.MaxUses,
			ValidFrom:      req.ValidFrom,
			ValidUntil:     req.ValidUntil,
			Enabled:        req.Enabled,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRewardResponse(reward))
	}
}

// RewardDelete removes a rule. Already-issued coupons survive deletion.
func RewardDelete(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rewardID, err := validators.PathUUID(chi.URLParam(r, "rewardID"), "reward id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), merchantID, rewardID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
