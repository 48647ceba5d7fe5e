package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/internal/webhooks/platform"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

// Handler is the webhook translation surface the controller depends on.
type Handler interface {
	HandleEvent(ctx context.Context, event platform.Event) (*platform.Result, error)
}

type platformWebhookResponse struct {
	Invocations   int   `json:"invocations"`
	PointsApplied int64 `json:"pointsApplied"`
	CouponsIssued int   `json:"couponsIssued"`
}

// PlatformWebhook receives commerce platform deliveries. The endpoint always
// answers 2xx for deliveries it has already seen; the platform treats any
// other status as an invitation to retry.
func PlatformWebhook(svc Handler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		// Platform payloads carry fields we do not model; decode leniently
		// instead of rejecting unknown keys.
		var event platform.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		result, err := svc.HandleEvent(r.Context(), event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, platformWebhookResponse{
			Invocations:   result.Invocations,
			PointsApplied: result.PointsApplied,
			CouponsIssued: result.CouponsIssued,
		})
	}
}
