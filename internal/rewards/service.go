package rewards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Service defines reward rule management and active-rule lookup.
type Service interface {
	Create(ctx context.Context, input CreateRewardInput) (*models.Reward, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Reward, error)
	List(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error)
	// ActiveRule returns the merchant's designated reward rule for coupon
	// issuance, or nil when no enabled rule is currently active.
	ActiveRule(ctx context.Context, merchantID uuid.UUID, now time.Time) (*models.Reward, error)
	Update(ctx context.Context, input UpdateRewardInput) (*models.Reward, error)
	Delete(ctx context.Context, merchantID, id uuid.UUID) error
}

// CreateRewardInput captures a new reward rule definition.
type CreateRewardInput struct {
	MerchantID     uuid.UUID
	Name           string
	PointsRequired int64
	RewardType     enums.RewardType
	RewardValue    decimal.Decimal
	MaxUses        *int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Enabled        bool
}

// UpdateRewardInput mutates an existing rule.
type UpdateRewardInput struct {
	MerchantID     uuid.UUID
	ID             uuid.UUID
	Name           *string
	PointsRequired *int64
	RewardValue    *decimal.Decimal
	MaxUses        *int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Enabled        *bool
}

type service struct {
	repo Repository
}

// NewService wires a reward service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reward repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateRewardInput) (*models.Reward, error) {
	if input.MerchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward name is required")
	}
	if input.PointsRequired <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points required must be positive")
	}
	if !input.RewardType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reward type %q", input.RewardType))
	}
	if input.RewardValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward value must not be negative")
	}
	if input.ValidFrom != nil && input.ValidUntil != nil && input.ValidUntil.Before(*input.ValidFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validity window is inverted")
	}

	reward := &models.Reward{
		MerchantID:     input.MerchantID,
		Name:           input.Name,
		PointsRequired: input.PointsRequired,
		RewardType:     input.RewardType,
		RewardValue:    input.RewardValue,
		MaxUses:        input.MaxUses,
		ValidFrom:      input.ValidFrom,
		ValidUntil:     input.ValidUntil,
		Enabled:        input.Enabled,
	}
	if err := s.repo.Create(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Reward, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward id is required")
	}
	reward, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reward not found")
	}
	return reward, nil
}

func (s *service) List(ctx context.Context, merchantID uuid.UUID) ([]models.Reward, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	return s.repo.ListByMerchant(ctx, merchantID)
}

func (s *service) ActiveRule(ctx context.Context, merchantID uuid.UUID, now time.Time) (*models.Reward, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	rules, err := s.repo.ListEnabledByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].ActiveAt(now) {
			return &rules[i], nil
		}
	}
	return nil, nil
}

func (s *service) Update(ctx context.Context, input UpdateRewardInput) (*models.Reward, error) {
	reward, err := s.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if reward.MerchantID != input.MerchantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reward not found")
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward name is required")
		}
		reward.Name = *input.Name
	}
	if input.PointsRequired != nil {
		if *input.PointsRequired <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "points required must be positive")
		}
		reward.PointsRequired = *input.PointsRequired
	}
	if input.RewardValue != nil {
		if input.RewardValue.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward value must not be negative")
		}
		reward.RewardValue = *input.RewardValue
	}
	if input.MaxUses != nil {
		reward.MaxUses = input.MaxUses
	}
	if input.ValidFrom != nil {
		reward.ValidFrom = input.ValidFrom
	}
	if input.ValidUntil != nil {
		reward.ValidUntil = input.ValidUntil
	}
	if input.Enabled != nil {
		reward.Enabled = *input.Enabled
	}
	if reward.ValidFrom != nil && reward.ValidUntil != nil && reward.ValidUntil.Before(*reward.ValidFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validity window is inverted")
	}

	if err := s.repo.Update(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

func (s *service) Delete(ctx context.Context, merchantID, id uuid.UUID) error {
	reward, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if reward.MerchantID != merchantID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reward not found")
	}
	return s.repo.Delete(ctx, merchantID, id)
}
