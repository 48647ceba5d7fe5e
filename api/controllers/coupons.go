package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/coupons"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type redeemCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type couponResponse struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	RewardID  uuid.UUID  `json:"rewardId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// CouponRedeem marks a coupon used at checkout. Redemption is first-wins;
// a replayed redeem of the same code fails rather than silently succeeding.
func CouponRedeem(issuer coupons.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req redeemCouponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := issuer.Redeem(r.Context(), merchantID, req.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, couponResponse{
			ID:        coupon.ID,
			Code:      coupon.Code,
			RewardID:  coupon.RewardID,
			ExpiresAt: coupon.ExpiresAt,
			Used:      coupon.Used,
			UsedAt:    coupon.UsedAt,
		})
	}
}
