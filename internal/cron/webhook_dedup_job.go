package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/metrics"
)

const defaultDedupWindow = 72 * time.Hour

type deliverySweepRepo interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookDedupJobParams configure the delivery table sweep.
type WebhookDedupJobParams struct {
	Logger     *logger.Logger
	Deliveries deliverySweepRepo
	Metrics    *metrics.CronJobMetrics
	Window     time.Duration
}

// NewWebhookDedupJob builds the job that sweeps old webhook delivery rows.
// The window must outlast the platform's retry horizon, otherwise a late
// retry would slip past deduplication and double-award.
func NewWebhookDedupJob(params WebhookDedupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("cron: logger is required")
	}
	if params.Deliveries == nil {
		return nil, fmt.Errorf("cron: delivery repository is required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &webhookDedupJob{
		logg:       params.Logger,
		deliveries: params.Deliveries,
		metrics:    params.Metrics,
		window:     window,
		now:        time.Now,
	}, nil
}

type webhookDedupJob struct {
	logg       *logger.Logger
	deliveries deliverySweepRepo
	metrics    *metrics.CronJobMetrics
	window     time.Duration
	now        func() time.Time
}

func (j *webhookDedupJob) Name() string { return "webhook-dedup-sweep" }

func (j *webhookDedupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	deleted, err := j.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep webhook deliveries: %w", err)
	}
	j.metrics.AddRowsProcessed(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "webhook delivery sweep complete")
	return nil
}
