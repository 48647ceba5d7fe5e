package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/pagination"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS loyalty_activities (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  event TEXT NOT NULL,
  points INTEGER NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedActivity(t *testing.T, db *gorm.DB, merchantID, customerID uuid.UUID, points int64, createdAt time.Time) models.LoyaltyActivity {
	t.Helper()

	entry := models.LoyaltyActivity{
		ID:         uuid.New(),
		MerchantID: merchantID,
		CustomerID: customerID,
		Event:      enums.EventPurchase,
		Points:     points,
		CreatedAt:  createdAt,
	}
	require.NoError(t, db.Create(&entry).Error)
	return entry
}

func TestLedgerSumsAreScopedAndSigned(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	customerID := uuid.New()
	otherCustomer := uuid.New()
	now := time.Now().UTC()

	seedActivity(t, db, merchantID, customerID, 120, now.Add(-3*time.Hour))
	seedActivity(t, db, merchantID, customerID, -20, now.Add(-2*time.Hour))
	seedActivity(t, db, merchantID, otherCustomer, 55, now.Add(-1*time.Hour))
	seedActivity(t, db, uuid.New(), uuid.New(), 999, now)

	customerTotal, err := repo.SumByCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), customerTotal)

	merchantTotal, err := repo.SumByMerchant(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(155), merchantTotal)

	empty, err := repo.SumByCustomer(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestLedgerListByCustomerPaginates(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	customerID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	var entries []models.LoyaltyActivity
	for i := 0; i < 5; i++ {
		entries = append(entries, seedActivity(t, db, merchantID, customerID, int64(i+1), base.Add(time.Duration(i)*time.Minute)))
	}
	seedActivity(t, db, merchantID, uuid.New(), 10, base)

	page, err := repo.ListByCustomer(ctx, customerID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	// limit+1 rows come back so callers can detect the next page
	require.Len(t, page, 3)
	assert.Equal(t, entries[4].ID, page[0].ID)
	assert.Equal(t, entries[3].ID, page[1].ID)

	cursor := pagination.EncodeCursor(pagination.Cursor{
		CreatedAt: page[1].CreatedAt,
		ID:        page[1].ID,
	})
	next, err := repo.ListByCustomer(ctx, customerID, pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, entries[2].ID, next[0].ID)

	_, err = repo.ListByCustomer(ctx, customerID, pagination.Params{Cursor: "not-base64"})
	assert.Error(t, err)
}

func TestLedgerCountSince(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	customerID := uuid.New()
	now := time.Now().UTC()

	seedActivity(t, db, merchantID, customerID, 10, now.Add(-48*time.Hour))
	seedActivity(t, db, merchantID, customerID, 10, now.Add(-2*time.Hour))
	seedActivity(t, db, merchantID, customerID, 10, now.Add(-1*time.Hour))

	count, err := repo.CountSince(ctx, merchantID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
