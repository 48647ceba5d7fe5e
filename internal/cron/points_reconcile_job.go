package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
	"github.com/nuqtalabs/loyalty-backend/pkg/metrics"
)

const reconcileBatchSize = 200

type reconcileMerchantRepo interface {
	ListActive(ctx context.Context, limit, offset int) ([]models.Merchant, error)
	SetCustomersPoints(ctx context.Context, id uuid.UUID, total int64) error
}

type reconcileLedgerRepo interface {
	SumByMerchant(ctx context.Context, merchantID uuid.UUID) (int64, error)
}

type reconcileNotificationRepo interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// PointsReconcileJobParams configure the reconciliation job.
type PointsReconcileJobParams struct {
	Logger        *logger.Logger
	Merchants     reconcileMerchantRepo
	Ledger        reconcileLedgerRepo
	Notifications reconcileNotificationRepo
	Metrics       *metrics.CronJobMetrics
	BatchSize     int
}

// NewPointsReconcileJob builds the job that repairs merchant point
// aggregates from the ledger. The ledger is the source of truth; the
// aggregate on the merchant row is a denormalized convenience that can
// drift if an increment is ever lost.
func NewPointsReconcileJob(params PointsReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("cron: logger is required")
	}
	if params.Merchants == nil {
		return nil, fmt.Errorf("cron: merchant repository is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("cron: ledger repository is required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("cron: notification repository is required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = reconcileBatchSize
	}
	return &pointsReconcileJob{
		logg:          params.Logger,
		merchants:     params.Merchants,
		ledger:        params.Ledger,
		notifications: params.Notifications,
		metrics:       params.Metrics,
		batchSize:     batch,
		now:           time.Now,
	}, nil
}

type pointsReconcileJob struct {
	logg          *logger.Logger
	merchants     reconcileMerchantRepo
	ledger        reconcileLedgerRepo
	notifications reconcileNotificationRepo
	metrics       *metrics.CronJobMetrics
	batchSize     int
	now           func() time.Time
}

func (j *pointsReconcileJob) Name() string { return "points-reconcile" }

func (j *pointsReconcileJob) Run(ctx context.Context) error {
	var checked, drifted int64
	var errs error
	offset := 0
	for {
		batch, err := j.merchants.ListActive(ctx, j.batchSize, offset)
		if err != nil {
			return fmt.Errorf("list merchants: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			checked++
			fixed, err := j.reconcileOne(ctx, &batch[i])
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if fixed {
				drifted++
			}
		}
		offset += len(batch)
	}

	j.metrics.AddRowsProcessed(j.Name(), checked)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"merchants_checked": checked,
		"drift_repaired":    drifted,
	})
	j.logg.Info(logCtx, "points reconciliation complete")
	return errs
}

func (j *pointsReconcileJob) reconcileOne(ctx context.Context, merchant *models.Merchant) (bool, error) {
	actual, err := j.ledger.SumByMerchant(ctx, merchant.ID)
	if err != nil {
		return false, fmt.Errorf("sum ledger for merchant %s: %w", merchant.ID, err)
	}
	if actual == merchant.CustomersPoints {
		return false, nil
	}

	drift := merchant.CustomersPoints - actual
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"merchant_id":      merchant.ID,
		"aggregate_points": merchant.CustomersPoints,
		"ledger_points":    actual,
		"drift":            drift,
	})
	j.logg.Warn(logCtx, "merchant aggregate drifted from ledger, repairing")

	if err := j.merchants.SetCustomersPoints(ctx, merchant.ID, actual); err != nil {
		return false, fmt.Errorf("repair aggregate for merchant %s: %w", merchant.ID, err)
	}

	notification := &models.Notification{
		MerchantID: merchant.ID,
		Type:       enums.NotificationTypeReconcileDrift,
		Title:      "Points aggregate repaired",
		Message: fmt.Sprintf(
			"The stored points total (%d) did not match the ledger (%d). The aggregate was reset to the ledger value on %s.",
			merchant.CustomersPoints, actual, j.now().UTC().Format("2006-01-02"),
		),
	}
	if err := j.notifications.Create(ctx, notification); err != nil {
		// The repair itself succeeded. Losing the audit note is not worth
		// failing the whole cycle over.
		j.logg.Error(logCtx, "failed to record drift notification", err)
	}
	return true, nil
}
