package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/metrics"
)

const defaultExpiryGraceDays = 7

type couponExpiryRepo interface {
	DeleteExpiredUnused(ctx context.Context, cutoff time.Time) (int64, error)
}

// CouponExpiryJobParams configure the coupon cleanup job.
type CouponExpiryJobParams struct {
	Logger    *logger.Logger
	Coupons   couponExpiryRepo
	Metrics   *metrics.CronJobMetrics
	GraceDays int
}

// NewCouponExpiryJob builds the job that purges expired, never-redeemed
// coupons. A short grace window keeps recently expired codes visible so
// support can still look them up.
func NewCouponExpiryJob(params CouponExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("cron: logger is required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("cron: coupon repository is required")
	}
	grace := params.GraceDays
	if grace <= 0 {
		grace = defaultExpiryGraceDays
	}
	return &couponExpiryJob{
		logg:      params.Logger,
		coupons:   params.Coupons,
		metrics:   params.Metrics,
		graceDays: grace,
		now:       time.Now,
	}, nil
}

type couponExpiryJob struct {
	logg      *logger.Logger
	coupons   couponExpiryRepo
	metrics   *metrics.CronJobMetrics
	graceDays int
	now       func() time.Time
}

func (j *couponExpiryJob) Name() string { return "coupon-expiry" }

func (j *couponExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.graceDays) * 24 * time.Hour)
	deleted, err := j.coupons.DeleteExpiredUnused(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired coupons: %w", err)
	}
	j.metrics.AddRowsProcessed(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "coupon expiry cleanup complete")
	return nil
}
