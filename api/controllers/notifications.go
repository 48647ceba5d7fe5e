package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/api/responses"
	"github.com/nuqtalabs/loyalty-backend/api/validators"
	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type notificationResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NotificationList returns the merchant's admin notifications, newest first.
func NotificationList(repo notifications.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.PaginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := repo.ListByMerchant(r.Context(), merchantID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]notificationResponse, 0, len(list))
		for _, n := range list {
			out = append(out, notificationResponse{
				ID:        n.ID,
				Type:      string(n.Type),
				Title:     n.Title,
				Message:   n.Message,
				ReadAt:    n.ReadAt,
				CreatedAt: n.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// NotificationMarkRead marks one notification read. Marking an already-read
// notification again is a no-op success.
func NotificationMarkRead(repo notifications.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := validators.PathUUID(chi.URLParam(r, "notificationID"), "notification id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := repo.MarkRead(r.Context(), merchantID, notificationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "read", "updated": updated})
	}
}

// NotificationUnreadCount returns the badge counter for the admin UI.
func NotificationUnreadCount(repo notifications.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := validators.PathUUID(chi.URLParam(r, "merchantID"), "merchant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := repo.CountUnread(r.Context(), merchantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"unread": count})
	}
}
