package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
)

type fakeRepository struct {
	rewards []models.Reward
	created *models.Reward
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, reward *models.Reward) error {
	reward.ID = uuid.New()
	f.created = reward
	f.rewards = append(f.rewards, *reward)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reward, error) {
	for i := range f.rewards {
		if f.rewards[i].ID == id {
			return &f.rewards[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	return f.rewards, nil
}

func (f *fakeRepository) ListEnabledByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	var out []models.Reward
	for _, r := range f.rewards {
		if r.MerchantID == merchantID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepository) IncrementTimesUsed(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeRepository) Update(ctx context.Context, reward *models.Reward) error { return nil }

func (f *fakeRepository) Delete(ctx context.Context, merchantID, id uuid.UUID) error { return nil }

func TestCreateValidation(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})

	_, err := svc.Create(context.Background(), CreateRewardInput{
		MerchantID:     uuid.New(),
		Name:           "10% off",
		PointsRequired: 0,
		RewardType:     enums.RewardTypePercentageDiscount,
		RewardValue:    decimal.NewFromInt(10),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero points, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateRewardInput{
		MerchantID:     uuid.New(),
		Name:           "10% off",
		PointsRequired: 100,
		RewardType:     enums.RewardType("mystery"),
		RewardValue:    decimal.NewFromInt(10),
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for bad type, got %v", err)
	}
}

func TestActiveRulePicksLowestActive(t *testing.T) {
	merchantID := uuid.New()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	exhaustedMax := 5

	repo := &fakeRepository{rewards: []models.Reward{
		{
			ID: uuid.New(), MerchantID: merchantID, Enabled: true,
			PointsRequired: 50, TimesUsed: 5, MaxUses: &exhaustedMax,
		},
		{
			ID: uuid.New(), MerchantID: merchantID, Enabled: true,
			PointsRequired: 100, ValidFrom: &past, ValidUntil: &future,
		},
		{
			ID: uuid.New(), MerchantID: merchantID, Enabled: true,
			PointsRequired: 200,
		},
	}}
	svc, _ := NewService(repo)

	rule, err := svc.ActiveRule(context.Background(), merchantID, now)
	if err != nil {
		t.Fatalf("ActiveRule: %v", err)
	}
	if rule == nil {
		t.Fatal("expected an active rule")
	}
	if rule.PointsRequired != 100 {
		t.Fatalf("expected the exhausted rule to be skipped, got points_required=%d", rule.PointsRequired)
	}
}

func TestActiveRuleNoneActive(t *testing.T) {
	merchantID := uuid.New()
	repo := &fakeRepository{rewards: []models.Reward{
		{ID: uuid.New(), MerchantID: merchantID, Enabled: false, PointsRequired: 100},
	}}
	svc, _ := NewService(repo)

	rule, err := svc.ActiveRule(context.Background(), merchantID, time.Now())
	if err != nil {
		t.Fatalf("ActiveRule: %v", err)
	}
	if rule != nil {
		t.Fatalf("expected nil rule, got %+v", rule)
	}
}
