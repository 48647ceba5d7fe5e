package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/nuqtalabs/loyalty-backend/api/routes"
	"github.com/nuqtalabs/loyalty-backend/internal/coupons"
	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/engine"
	"github.com/nuqtalabs/loyalty-backend/internal/ledger"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/internal/rewards"
	"github.com/nuqtalabs/loyalty-backend/internal/webhooks/platform"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	"github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/migrate"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	merchantRepo := merchants.NewRepository(dbClient.DB())
	customerRepo := customers.NewRepository(dbClient.DB())
	rewardRepo := rewards.NewRepository(dbClient.DB())
	couponRepo := coupons.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())
	deliveryRepo := platform.NewDeliveryRepository(dbClient.DB())
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	merchantService, err := merchants.NewService(merchantRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create merchant service", err)
		os.Exit(1)
	}

	rewardService, err := rewards.NewService(rewardRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create reward service", err)
		os.Exit(1)
	}

	writer, err := ledger.NewWriter(ledgerRepo, customerRepo, merchantRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger writer", err)
		os.Exit(1)
	}

	issuer, err := coupons.NewIssuer(dbClient, couponRepo, rewardRepo, notificationRepo, emitter, cfg.Loyalty, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon issuer", err)
		os.Exit(1)
	}

	engineService, err := engine.NewService(dbClient, merchantRepo, customerRepo, rewardRepo, writer, issuer, emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty engine", err)
		os.Exit(1)
	}

	webhookService, err := platform.NewService(engineService, merchantRepo, deliveryRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook translator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			DBPinger:      dbClient,
			RedisPinger:   redisClient,
			Engine:        engineService,
			Webhooks:      webhookService,
			Merchants:     merchantService,
			Rewards:       rewardService,
			Issuer:        issuer,
			Customers:     customerRepo,
			Ledger:        ledgerRepo,
			Notifications: notificationRepo,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
