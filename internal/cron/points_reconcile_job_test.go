package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
)

type fakeReconcileMerchants struct {
	merchants []models.Merchant
	setCalls  map[uuid.UUID]int64
}

func (f *fakeReconcileMerchants) ListActive(ctx context.Context, limit, offset int) ([]models.Merchant, error) {
	if offset >= len(f.merchants) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.merchants) {
		end = len(f.merchants)
	}
	return f.merchants[offset:end], nil
}

func (f *fakeReconcileMerchants) SetCustomersPoints(ctx context.Context, id uuid.UUID, total int64) error {
	if f.setCalls == nil {
		f.setCalls = map[uuid.UUID]int64{}
	}
	f.setCalls[id] = total
	return nil
}

type fakeReconcileLedger struct {
	sums map[uuid.UUID]int64
	err  error
}

func (f *fakeReconcileLedger) SumByMerchant(ctx context.Context, merchantID uuid.UUID) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.sums[merchantID], nil
}

type fakeReconcileNotifications struct {
	created []*models.Notification
	err     error
}

func (f *fakeReconcileNotifications) Create(ctx context.Context, notification *models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, notification)
	return nil
}

func newReconcileJob(t *testing.T, merchants *fakeReconcileMerchants, ledger *fakeReconcileLedger, notifications *fakeReconcileNotifications) Job {
	t.Helper()
	job, err := NewPointsReconcileJob(PointsReconcileJobParams{
		Logger:        testLogger(),
		Merchants:     merchants,
		Ledger:        ledger,
		Notifications: notifications,
		BatchSize:     2,
	})
	if err != nil {
		t.Fatalf("NewPointsReconcileJob: %v", err)
	}
	return job
}

func TestPointsReconcileRepairsDrift(t *testing.T) {
	drifted := models.Merchant{ID: uuid.New(), CustomersPoints: 500}
	healthy := models.Merchant{ID: uuid.New(), CustomersPoints: 120}
	merchants := &fakeReconcileMerchants{merchants: []models.Merchant{drifted, healthy}}
	ledger := &fakeReconcileLedger{sums: map[uuid.UUID]int64{
		drifted.ID: 470,
		healthy.ID: 120,
	}}
	notifications := &fakeReconcileNotifications{}
	job := newReconcileJob(t, merchants, ledger, notifications)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, ok := merchants.setCalls[drifted.ID]; !ok || got != 470 {
		t.Fatalf("drifted aggregate set to %d (present=%v), want 470", got, ok)
	}
	if _, touched := merchants.setCalls[healthy.ID]; touched {
		t.Fatal("healthy merchant was rewritten")
	}
	if len(notifications.created) != 1 {
		t.Fatalf("drift notifications = %d, want 1", len(notifications.created))
	}
	note := notifications.created[0]
	if note.MerchantID != drifted.ID || note.Type != enums.NotificationTypeReconcileDrift {
		t.Errorf("notification = %+v", note)
	}
}

func TestPointsReconcilePagesThroughMerchants(t *testing.T) {
	var all []models.Merchant
	sums := map[uuid.UUID]int64{}
	for i := 0; i < 5; i++ {
		m := models.Merchant{ID: uuid.New(), CustomersPoints: int64(i * 10)}
		sums[m.ID] = int64(i * 10)
		all = append(all, m)
	}
	merchants := &fakeReconcileMerchants{merchants: all}
	job := newReconcileJob(t, merchants, &fakeReconcileLedger{sums: sums}, &fakeReconcileNotifications{})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(merchants.setCalls) != 0 {
		t.Fatalf("no merchant should need repair, got %d writes", len(merchants.setCalls))
	}
}

func TestPointsReconcileSurvivesNotificationFailure(t *testing.T) {
	drifted := models.Merchant{ID: uuid.New(), CustomersPoints: 10}
	merchants := &fakeReconcileMerchants{merchants: []models.Merchant{drifted}}
	ledger := &fakeReconcileLedger{sums: map[uuid.UUID]int64{drifted.ID: 25}}
	job := newReconcileJob(t, merchants, ledger, &fakeReconcileNotifications{err: errors.New("insert failed")})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("notification failure must not fail the job: %v", err)
	}
	if merchants.setCalls[drifted.ID] != 25 {
		t.Fatal("aggregate was not repaired")
	}
}

func TestPointsReconcilePropagatesLedgerError(t *testing.T) {
	merchants := &fakeReconcileMerchants{merchants: []models.Merchant{{ID: uuid.New()}}}
	job := newReconcileJob(t, merchants, &fakeReconcileLedger{err: errors.New("query failed")}, &fakeReconcileNotifications{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected ledger error to propagate")
	}
}
