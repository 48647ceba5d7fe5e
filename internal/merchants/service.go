package merchants

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nuqtalabs/loyalty-backend/pkg/db/models"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

// Service defines merchant lifecycle and configuration operations.
type Service interface {
	Onboard(ctx context.Context, input OnboardInput) (*models.Merchant, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	GetSettings(ctx context.Context, id uuid.UUID) (*types.LoyaltySettings, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings types.LoyaltySettings) error
	Uninstall(ctx context.Context, id uuid.UUID) error
}

// OnboardInput captures the platform store data received on app authorization.
type OnboardInput struct {
	PlatformStoreID string
	Name            string
	Email           *string
	Locale          string
	Settings        types.LoyaltySettings
}

type service struct {
	repo Repository
}

// NewService wires a merchant service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Onboard(ctx context.Context, input OnboardInput) (*models.Merchant, error) {
	storeID := strings.TrimSpace(input.PlatformStoreID)
	if storeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform store id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant name is required")
	}
	if err := input.Settings.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loyalty settings")
	}

	existing, err := s.repo.FindByPlatformStoreID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "merchant already onboarded")
	}

	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = "ar"
	}

	merchant := &models.Merchant{
		PlatformStoreID: storeID,
		Name:            input.Name,
		Email:           input.Email,
		Locale:          locale,
		LoyaltySettings: input.Settings,
	}
	if err := s.repo.Create(ctx, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	merchant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}
	return merchant, nil
}

func (s *service) GetSettings(ctx context.Context, id uuid.UUID) (*types.LoyaltySettings, error) {
	merchant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings := merchant.LoyaltySettings
	return &settings, nil
}

// UpdateSettings is the configuration write boundary: invalid ratios and
// unordered tier thresholds are rejected here so the engine never sees them.
func (s *service) UpdateSettings(ctx context.Context, id uuid.UUID, settings types.LoyaltySettings) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loyalty settings")
	}
	return s.repo.UpdateSettings(ctx, id, settings)
}

func (s *service) Uninstall(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.MarkUninstalled(ctx, id)
}
