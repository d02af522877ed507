package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/internal/service"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Check constraints on the brands table.
const (
	brandAmountBoundsCheck = "brands_amount_bounds_check"
	brandExpiryMonthsCheck = "brands_expiry_months_check"
)

const brandColumns = `id, name, slug, description, logo_url, min_amount, max_amount,
	expiry_months, is_active, is_promoted, created_at, updated_at`

// BrandRepository provides data access for brands using pgx.
type BrandRepository struct {
	pool PoolInterface
}

// NewBrandRepository creates a new BrandRepository with the given pool.
func NewBrandRepository(pool *pgxpool.Pool) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// NewBrandRepositoryWithPool creates a new BrandRepository with a custom pool interface.
// This is primarily used for testing.
func NewBrandRepositoryWithPool(pool PoolInterface) *BrandRepository {
	return &BrandRepository{pool: pool}
}

// Insert inserts a new brand and fills in its timestamps.
// Returns service.ErrBrandExists if the name or slug is already taken.
func (r *BrandRepository) Insert(ctx context.Context, brand *model.Brand) error {
	query := `INSERT INTO brands (id, name, slug, description, logo_url, min_amount, max_amount,
		expiry_months, is_active, is_promoted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		brand.ID, brand.Name, brand.Slug, brand.Description, brand.LogoURL,
		brand.MinAmount, brand.MaxAmount, brand.ExpiryMonths, brand.IsActive, brand.IsPromoted,
	).Scan(&brand.CreatedAt, &brand.UpdatedAt)
	if err != nil {
		return translateBrandWriteError("insert brand", err)
	}
	return nil
}

// GetByID retrieves a brand by id.
// Returns nil, nil if the brand is not found (service layer handles this).
func (r *BrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Brand, error) {
	query := `SELECT ` + brandColumns + ` FROM brands WHERE id = $1`

	brand, err := scanBrand(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get brand %s: %w", id, err)
	}
	return brand, nil
}

// NameTaken reports whether another brand (other than excludeID) already uses
// the name (case-insensitively) or the slug.
func (r *BrandRepository) NameTaken(ctx context.Context, name, slug string, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM brands WHERE (LOWER(name) = LOWER($1) OR slug = $2) AND id <> $3
	)`

	var taken bool
	if err := r.pool.QueryRow(ctx, query, name, slug, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("check brand name: %w", err)
	}
	return taken, nil
}

// Update persists every mutable brand field.
// Returns service.ErrBrandNotFound if the brand vanished and
// service.ErrBrandExists on a name or slug collision.
func (r *BrandRepository) Update(ctx context.Context, brand *model.Brand) error {
	query := `UPDATE brands SET name = $2, slug = $3, description = $4, logo_url = $5,
		min_amount = $6, max_amount = $7, expiry_months = $8, is_active = $9, is_promoted = $10,
		updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		brand.ID, brand.Name, brand.Slug, brand.Description, brand.LogoURL,
		brand.MinAmount, brand.MaxAmount, brand.ExpiryMonths, brand.IsActive, brand.IsPromoted,
	).Scan(&brand.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrBrandNotFound
		}
		return translateBrandWriteError("update brand", err)
	}
	return nil
}

// List returns brands ordered with promoted brands first, then by name.
// On success, returns an empty slice (not nil) when no brands exist.
func (r *BrandRepository) List(ctx context.Context, includeInactive bool) ([]model.Brand, error) {
	query := `SELECT ` + brandColumns + ` FROM brands
		WHERE is_active OR $1
		ORDER BY is_promoted DESC, name`

	rows, err := r.pool.Query(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	brands := []model.Brand{}
	for rows.Next() {
		brand, err := scanBrand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands = append(brands, *brand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brand rows: %w", err)
	}
	return brands, nil
}

// CountActiveCards counts the brand's cards that still carry redeemable value.
func (r *BrandRepository) CountActiveCards(ctx context.Context, id uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM gift_cards WHERE brand_id = $1 AND status = $2`

	var n int
	if err := r.pool.QueryRow(ctx, query, id, string(model.StatusActive)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active cards for brand %s: %w", id, err)
	}
	return n, nil
}

// Deactivate soft-deletes a brand by clearing is_active.
func (r *BrandRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE brands SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate brand %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrBrandNotFound
	}
	return nil
}

// Delete hard-deletes a brand.
// Returns service.ErrBrandInUse when any card still references it.
func (r *BrandRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return service.ErrBrandInUse
		}
		return fmt.Errorf("delete brand %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrBrandNotFound
	}
	return nil
}

func scanBrand(row pgx.Row) (*model.Brand, error) {
	var b model.Brand
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Slug,
		&b.Description,
		&b.LogoURL,
		&b.MinAmount,
		&b.MaxAmount,
		&b.ExpiryMonths,
		&b.IsActive,
		&b.IsPromoted,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func translateBrandWriteError(op string, err error) error {
	code, constraint, ok := database.PgErrorCode(err)
	if ok {
		switch code {
		case database.CodeUniqueViolation:
			return service.ErrBrandExists
		case database.CodeCheckViolation:
			switch constraint {
			case brandAmountBoundsCheck:
				return service.ErrInvalidAmountBounds
			case brandExpiryMonthsCheck:
				return service.ErrInvalidExpiry
			}
			return fmt.Errorf("%s: %w: violates %s", op, service.ErrValidation, constraint)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
