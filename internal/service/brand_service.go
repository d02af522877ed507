package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
)

const (
	minExpiryMonths = 1
	maxExpiryMonths = 120
)

// BrandService manages the brand catalog and its issuance rules.
type BrandService struct {
	repo BrandRepositoryInterface
}

// NewBrandService creates a new BrandService.
func NewBrandService(repo BrandRepositoryInterface) *BrandService {
	return &BrandService{repo: repo}
}

// Create adds a brand. The slug is derived from the name.
// Returns ErrInvalidAmountBounds if min_amount >= max_amount and
// ErrBrandExists if the name or slug is already used.
func (s *BrandService) Create(ctx context.Context, req *model.CreateBrandRequest) (*model.Brand, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	brand := &model.Brand{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		LogoURL:      req.LogoURL,
		MinAmount:    req.MinAmount,
		MaxAmount:    req.MaxAmount,
		ExpiryMonths: req.ExpiryMonths,
		IsActive:     true,
		IsPromoted:   req.IsPromoted,
	}
	if req.IsActive != nil {
		brand.IsActive = *req.IsActive
	}
	brand.Slug = Slugify(brand.Name)

	if err := validateBrand(brand); err != nil {
		return nil, err
	}

	taken, err := s.repo.NameTaken(ctx, brand.Name, brand.Slug, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check brand name: %w", err)
	}
	if taken {
		return nil, ErrBrandExists
	}

	// The unique indexes remain the final authority if a concurrent create
	// slipped past the check above.
	if err := s.repo.Insert(ctx, brand); err != nil {
		return nil, err
	}

	log.Info().
		Str("brand_id", brand.ID.String()).
		Str("slug", brand.Slug).
		Msg("brand created")
	return brand, nil
}

// Update applies a partial update. Amount bounds are re-validated on the
// merged values, and a changed name is re-checked against all other brands.
func (s *BrandService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateBrandRequest) (*model.Brand, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	brand, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}
	if brand == nil {
		return nil, ErrBrandNotFound
	}

	nameChanged := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != brand.Name {
			nameChanged = true
			brand.Name = name
			brand.Slug = Slugify(name)
		}
	}
	if req.Description != nil {
		brand.Description = *req.Description
	}
	if req.LogoURL != nil {
		brand.LogoURL = *req.LogoURL
	}
	if req.MinAmount != nil {
		brand.MinAmount = *req.MinAmount
	}
	if req.MaxAmount != nil {
		brand.MaxAmount = *req.MaxAmount
	}
	if req.ExpiryMonths != nil {
		brand.ExpiryMonths = *req.ExpiryMonths
	}
	if req.IsActive != nil {
		brand.IsActive = *req.IsActive
	}
	if req.IsPromoted != nil {
		brand.IsPromoted = *req.IsPromoted
	}

	if err := validateBrand(brand); err != nil {
		return nil, err
	}

	if nameChanged {
		taken, err := s.repo.NameTaken(ctx, brand.Name, brand.Slug, brand.ID)
		if err != nil {
			return nil, fmt.Errorf("check brand name: %w", err)
		}
		if taken {
			return nil, ErrBrandExists
		}
	}

	if err := s.repo.Update(ctx, brand); err != nil {
		return nil, err
	}

	log.Info().Str("brand_id", brand.ID.String()).Msg("brand updated")
	return brand, nil
}

// List returns the catalog, optionally including inactive brands.
func (s *BrandService) List(ctx context.Context, includeInactive bool) ([]model.Brand, error) {
	brands, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	return brands, nil
}

// DeactivateOrDelete removes a brand from the catalog. A brand with active
// cards is only deactivated so live value is never orphaned. Otherwise the
// brand is deleted, unless historical cards still reference it, in which
// case it is deactivated as well.
func (s *BrandService) DeactivateOrDelete(ctx context.Context, id uuid.UUID) (model.BrandRemoval, error) {
	brand, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get brand: %w", err)
	}
	if brand == nil {
		return "", ErrBrandNotFound
	}

	active, err := s.repo.CountActiveCards(ctx, id)
	if err != nil {
		return "", fmt.Errorf("count active cards: %w", err)
	}

	if active == 0 {
		err = s.repo.Delete(ctx, id)
		if err == nil {
			log.Info().Str("brand_id", id.String()).Msg("brand deleted")
			return model.BrandDeleted, nil
		}
		if !errors.Is(err, ErrBrandInUse) {
			return "", err
		}
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return "", err
	}
	log.Info().
		Str("brand_id", id.String()).
		Int("active_cards", active).
		Msg("brand deactivated")
	return model.BrandDeactivated, nil
}

func validateBrand(b *model.Brand) error {
	if b.Slug == "" {
		return ErrInvalidName
	}
	if !b.MinAmount.IsPositive() || !b.MaxAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if !validMoney(b.MinAmount) || !validMoney(b.MaxAmount) {
		return ErrAmountPrecision
	}
	if b.MinAmount.GreaterThanOrEqual(b.MaxAmount) {
		return ErrInvalidAmountBounds
	}
	if b.ExpiryMonths < minExpiryMonths || b.ExpiryMonths > maxExpiryMonths {
		return ErrInvalidExpiry
	}
	return nil
}

// moneyLimit is the exclusive bound of the NUMERIC(12,2) money columns.
var moneyLimit = decimal.New(1, 10)

// validMoney reports whether d is representable in the money columns.
func validMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(2)) && d.Abs().LessThan(moneyLimit)
}
