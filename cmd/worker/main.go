package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nuqtalabs/loyalty-backend/internal/coupons"
	"github.com/nuqtalabs/loyalty-backend/internal/cron"
	"github.com/nuqtalabs/loyalty-backend/internal/customers"
	"github.com/nuqtalabs/loyalty-backend/internal/ledger"
	"github.com/nuqtalabs/loyalty-backend/internal/merchants"
	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/internal/webhooks/platform"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	"github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/mailer"
	"github.com/nuqtalabs/loyalty-backend/pkg/metrics"
	"github.com/nuqtalabs/loyalty-backend/pkg/migrate"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox"
	"github.com/nuqtalabs/loyalty-backend/pkg/outbox/idempotency"
	"github.com/nuqtalabs/loyalty-backend/pkg/pubsub"
	"github.com/nuqtalabs/loyalty-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	mailerClient, err := mailer.NewClient(context.Background(), cfg.Mailer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap mailer", err)
		os.Exit(1)
	}

	merchantRepo := merchants.NewRepository(dbClient.DB())
	customerRepo := customers.NewRepository(dbClient.DB())
	couponRepo := coupons.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	deliveryRepo := platform.NewDeliveryRepository(dbClient.DB())

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	loyaltyConsumer, err := notifications.NewLoyaltyConsumer(
		pubsubClient.LoyaltySubscription(),
		mailerClient,
		merchantRepo,
		customerRepo,
		idempotencyManager,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty consumer", err)
		os.Exit(1)
	}

	alertsConsumer, err := notifications.NewAlertsConsumer(
		pubsubClient.NotificationSubscription(),
		mailerClient,
		merchantRepo,
		idempotencyManager,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create alerts consumer", err)
		os.Exit(1)
	}

	cronService, err := buildCron(cfg, logg, dbClient, redisClient, cronDeps{
		merchants:     merchantRepo,
		ledger:        ledgerRepo,
		notifications: notificationRepo,
		coupons:       couponRepo,
		outbox:        outboxRepo,
		deliveries:    deliveryRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		Mailer:          mailerClient,
		LoyaltyConsumer: loyaltyConsumer,
		AlertsConsumer:  alertsConsumer,
		Cron:            cronService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"service": "worker",
	})
	logg.Info(ctx, "starting worker")

	go serveMetrics(ctx, logg, cfg.App.MetricsAddr)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "serving worker metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

type cronDeps struct {
	merchants     merchants.Repository
	ledger        ledger.Repository
	notifications notifications.Repository
	coupons       coupons.Repository
	outbox        *outbox.Repository
	deliveries    platform.DeliveryRepository
}

func buildCron(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, deps cronDeps) (*cron.Service, error) {
	lockKey := cfg.Cron.LockKey
	if lockKey == "" {
		lockKey = redisClient.CronLockKey(cfg.App.Env)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey, cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	reconcileJob, err := cron.NewPointsReconcileJob(cron.PointsReconcileJobParams{
		Logger:        logg,
		Merchants:     deps.merchants,
		Ledger:        deps.ledger,
		Notifications: deps.notifications,
		Metrics:       collector,
	})
	if err != nil {
		return nil, err
	}

	couponExpiryJob, err := cron.NewCouponExpiryJob(cron.CouponExpiryJobParams{
		Logger:  logg,
		Coupons: deps.coupons,
		Metrics: collector,
	})
	if err != nil {
		return nil, err
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Outbox:        deps.outbox,
		Metrics:       collector,
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	dedupSweepJob, err := cron.NewWebhookDedupJob(cron.WebhookDedupJobParams{
		Logger:     logg,
		Deliveries: deps.deliveries,
		Metrics:    collector,
		Window:     cfg.Loyalty.WebhookDedupWindow,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry(reconcileJob, couponExpiryJob, outboxRetentionJob, dedupSweepJob)
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  collector,
		Interval: cfg.Cron.Interval,
	})
}
