package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nuqtalabs/loyalty-backend/api/controllers"
	webhookcontrollers "github.com/nuqtalabs/loyalty-backend/api/controllers/webhooks"
	"github.com/nuqtalabs/loyalty-backend/api/middleware"
	"github.com/nuqtalabs/loyalty-backend/internal/coupons"
	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/engine"
	"github.com/nuqtalabs/loyalty-backend/internal/ledger"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Params carries every dependency the HTTP surface needs.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DBPinger    pinger
	RedisPinger pinger

	Engine        engine.Service
	Webhooks      webhookcontrollers.Handler
	Merchants     merchants.Service
	Rewards       rewards.Service
	Issuer        coupons.Issuer
	Customers     customers.Repository
	Ledger        ledger.Repository
	Notifications notifications.Repository
}

// NewRouter assembles the API.
func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DBPinger, p.RedisPinger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/platform", webhookcontrollers.PlatformWebhook(p.Webhooks, p.Logger))
		r.Post("/loyalty/invoke", controllers.LoyaltyInvoke(p.Engine, p.Logger))

		r.Post("/merchants", controllers.MerchantOnboard(p.Merchants, p.Logger))
		r.Route("/merchants/{merchantID}", func(r chi.Router) {
			r.Get("/", controllers.MerchantGet(p.Merchants, p.Logger))
			r.Delete("/", controllers.MerchantUninstall(p.Merchants, p.Logger))
			r.Get("/settings", controllers.MerchantSettingsGet(p.Merchants, p.Logger))
			r.Put("/settings", controllers.MerchantSettingsUpdate(p.Merchants, p.Logger))

			r.Route("/rewards", func(r chi.Router) {
				r.Get("/", controllers.RewardList(p.Rewards, p.Logger))
				r.Post("/", controllers.RewardCreate(p.Rewards, p.Logger))
				r.Patch("/{rewardID}", controllers.RewardUpdate(p.Rewards, p.Logger))
				r.Delete("/{rewardID}", controllers.RewardDelete(p.Rewards, p.Logger))
			})

			r.Post("/coupons/redeem", controllers.CouponRedeem(p.Issuer, p.Logger))

			r.Route("/customers/{customerID}", func(r chi.Router) {
				r.Get("/", controllers.CustomerGet(p.Customers, p.Logger))
				r.Get("/activity", controllers.CustomerActivity(p.Customers, p.Ledger, p.Logger))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.NotificationList(p.Notifications, p.Logger))
				r.Get("/unread-count", controllers.NotificationUnreadCount(p.Notifications, p.Logger))
				r.Post("/{notificationID}/read", controllers.NotificationMarkRead(p.Notifications, p.Logger))
			})
		})
	})

	return r
}
