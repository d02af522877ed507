package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/internal/service"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

const cardColumns = `id, brand_id, card_number, card_code, pin_hash, initial_balance,
	current_balance, status, version, issued_at, activated_at, expires_at,
	order_reference, updated_at`

// CardRepository provides data access for gift cards using pgx.
type CardRepository struct {
	pool PoolInterface
}

// NewCardRepository creates a new CardRepository with the given pool.
func NewCardRepository(pool *pgxpool.Pool) *CardRepository {
	return &CardRepository{pool: pool}
}

// NewCardRepositoryWithPool creates a new CardRepository with a custom pool interface.
// This is primarily used for testing.
func NewCardRepositoryWithPool(pool PoolInterface) *CardRepository {
	return &CardRepository{pool: pool}
}

// Insert inserts a freshly issued card within a transaction.
// Returns an error wrapping service.ErrDuplicateIdentifier when the card
// number or lookup code collides with an existing card.
func (r *CardRepository) Insert(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error {
	query := `INSERT INTO gift_cards (id, brand_id, card_number, card_code, pin_hash,
		initial_balance, current_balance, status, version, issued_at, expires_at,
		order_reference, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $10)`

	_, err := tx.Exec(ctx, query,
		card.ID, card.BrandID, card.CardNumber, card.CardCode, card.PINHash,
		card.InitialBalance, card.CurrentBalance, string(card.Status), card.Version,
		card.IssuedAt, card.ExpiresAt, card.OrderReference,
	)
	if err != nil {
		code, constraint, ok := database.PgErrorCode(err)
		if ok && code == database.CodeUniqueViolation {
			return fmt.Errorf("%w: %s", service.ErrDuplicateIdentifier, constraint)
		}
		return fmt.Errorf("insert card: %w", err)
	}
	card.UpdatedAt = card.IssuedAt
	return nil
}

// ExistsByNumber reports whether a card number is already allocated.
func (r *CardRepository) ExistsByNumber(ctx context.Context, cardNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM gift_cards WHERE card_number = $1)`, cardNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check card number: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a card by id.
// Returns nil, nil if the card is not found (service layer handles this).
func (r *CardRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.GiftCard, error) {
	return r.getOne(ctx, "id", id)
}

// GetByNumber retrieves a card by its normalized card number.
func (r *CardRepository) GetByNumber(ctx context.Context, cardNumber string) (*model.GiftCard, error) {
	return r.getOne(ctx, "card_number", cardNumber)
}

// GetByCode retrieves a card by its canonical lookup code.
func (r *CardRepository) GetByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	return r.getOne(ctx, "card_code", code)
}

// column is always one of the constants above, never caller input.
func (r *CardRepository) getOne(ctx context.Context, column string, value any) (*model.GiftCard, error) {
	query := `SELECT ` + cardColumns + ` FROM gift_cards WHERE ` + column + ` = $1`

	card, err := scanCard(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get card by %s: %w", column, err)
	}
	return card, nil
}

// GetForUpdate retrieves a card with a row lock (SELECT FOR UPDATE).
// This locks the row until the transaction completes.
// Returns service.ErrCardNotFound if the card doesn't exist.
func (r *CardRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.GiftCard, error) {
	query := `SELECT ` + cardColumns + ` FROM gift_cards WHERE id = $1 FOR UPDATE`

	card, err := scanCard(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCardNotFound
		}
		return nil, fmt.Errorf("get card for update %s: %w", id, err)
	}
	return card, nil
}

// Save writes the card's mutable state, guarded by its version.
// On success card.Version and card.UpdatedAt reflect the stored row.
// Returns service.ErrConcurrentModified if the row changed since it was read.
func (r *CardRepository) Save(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error {
	query := `UPDATE gift_cards
		SET current_balance = $3, status = $4, activated_at = $5,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`

	err := tx.QueryRow(ctx, query,
		card.ID, card.Version, card.CurrentBalance, string(card.Status), card.ActivatedAt,
	).Scan(&card.Version, &card.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ErrConcurrentModified
		}
		return fmt.Errorf("save card %s: %w", card.ID, err)
	}
	return nil
}

func scanCard(row pgx.Row) (*model.GiftCard, error) {
	var (
		c      model.GiftCard
		status string
	)
	err := row.Scan(
		&c.ID,
		&c.BrandID,
		&c.CardNumber,
		&c.CardCode,
		&c.PINHash,
		&c.InitialBalance,
		&c.CurrentBalance,
		&status,
		&c.Version,
		&c.IssuedAt,
		&c.ActivatedAt,
		&c.ExpiresAt,
		&c.OrderReference,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status, err = model.ParseCardStatus(status)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
