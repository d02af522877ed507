package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Brand defines the issuance rules for a family of gift cards.
type Brand struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	LogoURL      string          `json:"logo_url"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	ExpiryMonths int             `json:"expiry_months"`
	IsActive     bool            `json:"is_active"`
	IsPromoted   bool            `json:"is_promoted"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AcceptsAmount reports whether amount lies within [MinAmount, MaxAmount].
func (b *Brand) AcceptsAmount(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.MinAmount) && amount.LessThanOrEqual(b.MaxAmount)
}

// BrandRemoval describes what DeactivateOrDelete did to a brand.
type BrandRemoval string

const (
	BrandDeactivated BrandRemoval = "deactivated"
	BrandDeleted     BrandRemoval = "deleted"
)

// CreateBrandRequest is the DTO for creating a brand.
type CreateBrandRequest struct {
	Name         string          `json:"name" validate:"required,notblank,max=255"`
	Description  string          `json:"description" validate:"max=2000"`
	LogoURL      string          `json:"logo_url" validate:"omitempty,url,max=1024"`
	MinAmount    decimal.Decimal `json:"min_amount" validate:"gt=0"`
	MaxAmount    decimal.Decimal `json:"max_amount" validate:"gt=0"`
	ExpiryMonths int             `json:"expiry_months" validate:"required,min=1,max=120"`
	IsActive     *bool           `json:"is_active"`
	IsPromoted   bool            `json:"is_promoted"`
}

// UpdateBrandRequest is the DTO for patching a brand. Nil fields are left unchanged.
type UpdateBrandRequest struct {
	Name         *string          `json:"name" validate:"omitempty,notblank,max=255"`
	Description  *string          `json:"description" validate:"omitempty,max=2000"`
	LogoURL      *string          `json:"logo_url" validate:"omitempty,max=1024"`
	MinAmount    *decimal.Decimal `json:"min_amount" validate:"omitempty,gt=0"`
	MaxAmount    *decimal.Decimal `json:"max_amount" validate:"omitempty,gt=0"`
	ExpiryMonths *int             `json:"expiry_months" validate:"omitempty,min=1,max=120"`
	IsActive     *bool            `json:"is_active"`
	IsPromoted   *bool            `json:"is_promoted"`
}
