package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nuqtalabs/loyalty-backend/internal/cron"
	"github.com/nuqtalabs/loyalty-backend/internal/notifications"
	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	"github.com/nuqtalabs/loyalty-backend/pkg/db"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/mailer"
	"github.com/nuqtalabs/loyalty-backend/pkg/pubsub"
	"github.com/nuqtalabs/loyalty-backend/pkg/redis"
)

type ServiceParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              *db.Client
	Redis           *redis.Client
	PubSub          *pubsub.Client
	Mailer          *mailer.Client
	LoyaltyConsumer *notifications.LoyaltyConsumer
	AlertsConsumer  *notifications.AlertsConsumer
	Cron            *cron.Service
}

// Service supervises the long-running background legs: the two Pub/Sub
// consumers and the cron scheduler. If any of them stops with a real error
// the whole worker exits and the orchestrator restarts it.
type Service struct {
	cfg             *config.Config
	logg            *logger.Logger
	db              *db.Client
	redis           *redis.Client
	pubsub          *pubsub.Client
	mailer          *mailer.Client
	loyaltyConsumer *notifications.LoyaltyConsumer
	alertsConsumer  *notifications.AlertsConsumer
	cron            *cron.Service
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Mailer == nil {
		return nil, errors.New("mailer client is required")
	}
	if params.LoyaltyConsumer == nil {
		return nil, errors.New("loyalty consumer is required")
	}
	if params.AlertsConsumer == nil {
		return nil, errors.New("alerts consumer is required")
	}
	if params.Cron == nil {
		return nil, errors.New("cron service is required")
	}

	return &Service{
		cfg:             params.Config,
		logg:            params.Logger,
		db:              params.DB,
		redis:           params.Redis,
		pubsub:          params.PubSub,
		mailer:          params.Mailer,
		loyaltyConsumer: params.LoyaltyConsumer,
		alertsConsumer:  params.AlertsConsumer,
		cron:            params.Cron,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "mailer", s.pingMailer); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) pingMailer(ctx context.Context) error {
	if s == nil || s.mailer == nil {
		return errors.New("mailer client not initialized")
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- s.loyaltyConsumer.Run(ctx)
	}()
	go func() {
		errCh <- s.alertsConsumer.Run(ctx)
	}()
	go func() {
		errCh <- s.cron.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "background task stopped unexpectedly", err)
				return err
			}
			return err
		}
	}
}
